package provision

import (
	"fmt"
	"sort"
	"strings"
)

// StepKind names one typed stage of the build/run pipeline.
type StepKind string

// Pipeline step kinds, executed in order inside the environment.
const (
	StepClone    StepKind = "clone"
	StepWriteEnv StepKind = "write-env"
	StepInstall  StepKind = "install"
	StepBuild    StepKind = "build"
	StepServe    StepKind = "serve"
)

// Step is one stage of the synthesized build/run program.
type Step struct {
	Kind     StepKind
	Commands []string
}

// Framework describes how a supported framework is installed, built and
// served. Static frameworks are built host-side and uploaded instead of
// served from a live process.
type Framework struct {
	Name      string
	Static    bool
	OutputDir string
	Install   []string
	Build     []string
	Serve     string
}

var frameworks = map[string]Framework{
	"static-site": {
		Name:      "static-site",
		Static:    true,
		OutputDir: ".",
	},
	"react": {
		Name:      "react",
		Static:    true,
		OutputDir: "dist",
		Install:   []string{"npm install"},
		Build:     []string{"npm run build"},
	},
	"node": {
		Name:    "node",
		Install: []string{"npm install"},
		Serve:   "npm run start",
	},
	"express": {
		Name:    "express",
		Install: []string{"npm install"},
		Serve:   "node index.js",
	},
	"next": {
		Name:    "next",
		Install: []string{"npm install"},
		Build:   []string{"npm run build"},
		Serve:   "npm run start",
	},
}

// LookupFramework resolves a framework by name, case-insensitive.
func LookupFramework(name string) (Framework, bool) {
	fw, ok := frameworks[strings.ToLower(strings.TrimSpace(name))]
	return fw, ok
}

// SupportedFrameworks lists the known framework names, sorted.
func SupportedFrameworks() []string {
	names := make([]string, 0, len(frameworks))
	for name := range frameworks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PlanSteps assembles the ordered pipeline for a live-process deployment:
// clone, write-env, install, build, serve, with the serve command bound to
// the fixed in-environment port.
func PlanSteps(sourceRef string, envVars map[string]string, fw Framework, appPort int) []Step {
	steps := []Step{
		{Kind: StepClone, Commands: []string{
			fmt.Sprintf("git clone %s /app", shellQuote(sourceRef)),
			"cd /app",
		}},
		{Kind: StepWriteEnv, Commands: envFileCommands(envVars, appPort)},
	}
	if len(fw.Install) > 0 {
		steps = append(steps, Step{Kind: StepInstall, Commands: fw.Install})
	}
	if len(fw.Build) > 0 {
		steps = append(steps, Step{Kind: StepBuild, Commands: fw.Build})
	}
	serve := fw.Serve
	if serve == "" {
		serve = "npm run start"
	}
	steps = append(steps, Step{Kind: StepServe, Commands: []string{
		fmt.Sprintf("PORT=%d %s", appPort, serve),
	}})
	return steps
}

// RenderScript turns typed steps into one shell program. Each step echoes a
// marker before running so per-step progress and failures are visible in the
// captured output stream.
func RenderScript(steps []Step) string {
	var b strings.Builder
	b.WriteString("set -e\n")
	for _, step := range steps {
		fmt.Fprintf(&b, "echo %s\n", shellQuote(fmt.Sprintf("deploify: step %s started", step.Kind)))
		for _, cmd := range step.Commands {
			b.WriteString(cmd)
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "echo %s\n", shellQuote(fmt.Sprintf("deploify: step %s complete", step.Kind)))
	}
	return b.String()
}

func envFileCommands(envVars map[string]string, appPort int) []string {
	keys := make([]string, 0, len(envVars))
	for k := range envVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cmds := []string{"rm -f .env", fmt.Sprintf("echo %s >> .env", shellQuote(fmt.Sprintf("PORT=%d", appPort)))}
	for _, k := range keys {
		cmds = append(cmds, fmt.Sprintf("echo %s >> .env", shellQuote(k+"="+envVars[k])))
	}
	return cmds
}

// shellQuote single-quotes a value for safe interpolation into the script.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
