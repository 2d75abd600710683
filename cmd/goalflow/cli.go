package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Compile  CompileCmd  `cmd:"" help:"Compile an interpreted recording into a workflow"`
	Run      RunCmd      `cmd:"" help:"Run a workflow"`
	Validate ValidateCmd `cmd:"" help:"Validate a workflow document"`
	Inspect  InspectCmd  `cmd:"" help:"Show workflow structure"`
	Replay   ReplayCmd   `cmd:"" help:"Replay a run session for forensic analysis"`
	Search   SearchCmd   `cmd:"" help:"Search the workflow library"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// CompileCmd compiles a trace file.
type CompileCmd struct {
	Trace  string `arg:"" help:"Interpreted trace (JSON)"`
	Output string `short:"o" help:"Output path (default stdout)"`
	Name   string `help:"Workflow name (overrides the recording's)"`
	Format string `help:"Output format: json or yaml (default from output extension)"`
	NoLLM  bool   `name:"no-llm" help:"Compile without model classification or enrichment"`
	Config string `help:"Config file path"`
}

// RunCmd executes a workflow.
type RunCmd struct {
	Workflow    string            `arg:"" help:"Workflow file or library id"`
	Input       map[string]string `short:"i" help:"Parameter binding key=value (repeatable)"`
	UseDefaults bool              `help:"Fill missing bindings from workflow defaults"`
	Interactive bool              `help:"Prompt for missing bindings"`
	NoFallback  bool              `help:"Disable agent fallback"`
	Config      string            `help:"Config file path"`
}

// ValidateCmd validates a workflow.
type ValidateCmd struct {
	Workflow string `arg:"" help:"Workflow file or library id"`
	Config   string `help:"Config file path"`
}

// InspectCmd shows workflow structure.
type InspectCmd struct {
	Workflow string `arg:"" help:"Workflow file or library id"`
	Config   string `help:"Config file path"`
}

// ReplayCmd replays a session for analysis.
type ReplayCmd struct {
	Session string `arg:"" help:"Session file (.jsonl)"`
	Verbose int    `short:"v" type:"counter" help:"Verbosity level (-v, -vv)"`
	NoPager bool   `help:"Disable pager for output"`
	Follow  bool   `short:"f" help:"Follow a session that is still being written"`
}

// SearchCmd searches the workflow library.
type SearchCmd struct {
	Query  string `arg:"" optional:"" help:"Search text (empty lists everything)"`
	Dir    string `help:"Library directory (default from config)"`
	Limit  int    `default:"10" help:"Maximum results"`
	Watch  bool   `short:"w" help:"Reprint results when the library changes"`
	Config string `help:"Config file path"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
