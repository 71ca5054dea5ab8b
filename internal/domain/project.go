package domain

import "time"

// Project is the logical application identified by a source reference and a
// stable subdomain.
type Project struct {
	ID        string
	SourceRef string
	Subdomain string
	Owner     string
	CreatedAt time.Time
}
