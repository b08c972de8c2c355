// amiya-ctl sends one command to the running daemon and prints the reply.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/amiya-sh/amiya/ipc"
)

const usage = `usage: amiya-ctl [flags] <command>

commands:
  volume set <level> | up | down | mute | unmute | toggle-mute
  brightness set <level> | up | down
  power shutdown | reboot | suspend | hibernate | lock
  popup show | hide | toggle <bluetooth|wifi|media-control|power>
  status
  ping

flags:
  -a, --amount <n>      step for up/down commands
      --socket-dir <d>  override the runtime socket directory
`

func main() {
	amount := flag.Float64P("amount", "a", 0, "step for up/down commands")
	socketDir := flag.String("socket-dir", "", "override the runtime socket directory")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cmd, err := buildCommand(flag.Args(), *amount)
	if err != nil {
		fmt.Fprintln(os.Stderr, "amiya-ctl:", err)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := ipc.Send(ctx, ipc.SocketPath(*socketDir), cmd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "amiya-ctl:", err)
		os.Exit(1)
	}

	switch resp.Status {
	case ipc.StatusError:
		fmt.Fprintln(os.Stderr, resp.Message)
		os.Exit(1)
	case ipc.StatusStatus:
		fmt.Printf("amiya %s, up %s\n", resp.Version, (time.Duration(resp.Uptime) * time.Second))
	case ipc.StatusPong:
		fmt.Println("pong")
	default:
		if resp.Message != "" {
			fmt.Println(resp.Message)
		}
	}
}

func buildCommand(args []string, amount float64) (ipc.Command, error) {
	if len(args) == 0 {
		return ipc.Command{}, fmt.Errorf("no command given")
	}

	switch args[0] {
	case "volume":
		return buildLevelCommand(ipc.CommandVolume, args[1:], amount)
	case "brightness":
		return buildLevelCommand(ipc.CommandBrightness, args[1:], amount)
	case "power":
		if len(args) < 2 {
			return ipc.Command{}, fmt.Errorf("power requires an action")
		}
		return ipc.NewPowerCommand(args[1])
	case "popup":
		return buildPopupCommand(args[1:])
	case "status":
		return ipc.Command{Type: ipc.CommandStatus}, nil
	case "ping":
		return ipc.Command{Type: ipc.CommandPing}, nil
	default:
		return ipc.Command{}, fmt.Errorf("unknown command %q", args[0])
	}
}

func buildLevelCommand(cmdType string, args []string, amount float64) (ipc.Command, error) {
	if len(args) == 0 {
		return ipc.Command{}, fmt.Errorf("%s requires an action", cmdType)
	}

	action := ipc.LevelAction{Action: args[0]}
	switch args[0] {
	case ipc.ActionSet:
		if len(args) < 2 {
			return ipc.Command{}, fmt.Errorf("%s set requires a level", cmdType)
		}
		level, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return ipc.Command{}, fmt.Errorf("invalid level %q", args[1])
		}
		action.Level = &level
	case ipc.ActionUp, ipc.ActionDown:
		if amount > 0 {
			action.Amount = &amount
		}
	case ipc.ActionMute, ipc.ActionUnmute, ipc.ActionToggleMute:
		if cmdType != ipc.CommandVolume {
			return ipc.Command{}, fmt.Errorf("%s does not support %q", cmdType, args[0])
		}
	default:
		return ipc.Command{}, fmt.Errorf("unknown %s action %q", cmdType, args[0])
	}

	return ipc.NewLevelCommand(cmdType, action)
}

func buildPopupCommand(args []string) (ipc.Command, error) {
	if len(args) < 2 {
		return ipc.Command{}, fmt.Errorf("popup requires an action and a popup name")
	}

	var cmdType string
	switch args[0] {
	case "show":
		cmdType = ipc.CommandShowPopup
	case "hide":
		cmdType = ipc.CommandHidePopup
	case "toggle":
		cmdType = ipc.CommandTogglePopup
	default:
		return ipc.Command{}, fmt.Errorf("unknown popup action %q", args[0])
	}

	return ipc.NewPopupCommand(cmdType, args[1]), nil
}
