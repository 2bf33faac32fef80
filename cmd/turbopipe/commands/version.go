package commands

import (
	"fmt"
	"io"
	"runtime"

	"github.com/marmos91/turbopipe/pkg/pipe"
	"github.com/spf13/cobra"
)

var versionShort bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Print the turbopipe release and the build it came from, together with the
engine defaults compiled into this binary. Use --short in scripts that only
need the release number.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if versionShort {
			_, _ = fmt.Fprintln(out, Version)
			return
		}
		writeVersion(out)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show only version number")
}

func writeVersion(w io.Writer) {
	lines := [][2]string{
		{"Commit", Commit},
		{"Built", Date},
		{"Go version", runtime.Version()},
		{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
		{"Engine", fmt.Sprintf("%d workers, queue of %d jobs", pipe.DefaultWorkers, pipe.DefaultQueueSize)},
	}

	_, _ = fmt.Fprintf(w, "turbopipe %s\n", Version)
	for _, l := range lines {
		_, _ = fmt.Fprintf(w, "  %-11s %s\n", l[0]+":", l[1])
	}
}
