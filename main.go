package main

import (
	"runtime/debug"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/lyrebird-bot/lyrebird/cmd/runner"
	"github.com/lyrebird-bot/lyrebird/cmd/worker"
	"github.com/spf13/cobra"
)

func main() {
	boa.CmdT[boa.NoParams]{
		Use:     "lyrebird",
		Short:   "Voice playback bot with restart survival",
		Version: appVersion(),
		SubCmds: []*cobra.Command{
			worker.Cmd(),
			runner.Cmd(),
		},
	}.Run()
}

func appVersion() string {
	bi, hasBuildInfo := debug.ReadBuildInfo()
	if !hasBuildInfo {
		return "unknown-(no build info)"
	}

	versionString := bi.Main.Version
	if versionString == "" {
		versionString = "unknown-(no version)"
	}

	return versionString
}
