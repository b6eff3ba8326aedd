package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandPanel    Command = "panel"
	CommandStatus   Command = "status"
	CommandStart    Command = "start"
	CommandStop     Command = "stop"
	CommandRestart  Command = "restart"
	CommandSet      Command = "set"
	CommandConfig   Command = "config"
	CommandDevices  Command = "devices"
	CommandCheckKey Command = "check-key"
	CommandDoctor   Command = "doctor"
	CommandServe    Command = "serve"
	CommandShutdown Command = "shutdown"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

// argLimits holds min and max trailing arguments; max < 0 means unbounded.
var argLimits = map[Command][2]int{
	CommandPanel:    {0, 0},
	CommandStatus:   {0, 0},
	CommandStart:    {0, 0},
	CommandStop:     {0, 0},
	CommandRestart:  {0, 0},
	CommandSet:      {1, -1},
	CommandConfig:   {0, 0},
	CommandDevices:  {0, 0},
	CommandCheckKey: {0, 1},
	CommandDoctor:   {0, 0},
	CommandServe:    {0, 0},
	CommandShutdown: {0, 0},
	CommandVersion:  {0, 0},
	CommandHelp:     {0, 0},
}

type Parsed struct {
	Command    Command
	ConfigPath string
	ShowHelp   bool
	Args       []string
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			limits, ok := argLimits[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			rest := args[i+1:]
			if len(rest) < limits[0] {
				return Parsed{}, fmt.Errorf("command %q requires at least %d argument(s)", arg, limits[0])
			}
			if limits[1] >= 0 && len(rest) > limits[1] {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			if len(rest) > 0 {
				parsed.Args = append([]string(nil), rest...)
			}
			return parsed, nil
		}
	}

	return parsed, nil
}

// Assignment is one field=value pair from `set`.
type Assignment struct {
	Field string
	Value string
}

// ParseAssignments splits `set` arguments on the first '='.
func ParseAssignments(args []string) ([]Assignment, error) {
	out := make([]Assignment, 0, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		out = append(out, Assignment{Field: field, Value: value})
	}
	return out, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [args]

Commands:
  panel               Interactive control panel with live status
  status              Print whether the translation service is running
  start               Validate credentials, sync configuration, and start the service
  stop                Stop the translation service
  restart             Restart the translation service
  set FIELD=VALUE...  Change settings and sync them to the service
  config              Print the stored configuration
  devices             List microphones known to the service
  check-key [KEY]     Check the DashScope key format (default: stored key)
  doctor              Run configuration and environment checks
  serve               Run the translation service API in the foreground
  shutdown            Stop a running serve process
  version             Print version information
  help                Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/yakutan/config.jsonc)
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
