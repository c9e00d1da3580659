// Command diskinfo inspects a .dsk or .woz disk image and reports each
// track's classification (standard DOS 3.3, nonstandard/copy-protected,
// or empty) without running the emulator.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchacon/apple2e/diskimage"
	"github.com/jchacon/apple2e/nibble"
)

func main() {
	root := &cobra.Command{
		Use:   "diskinfo <image.dsk|image.woz>",
		Short: "Report per-track classification for an Apple II disk image",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var streams *diskimage.BitStreams
	if strings.HasSuffix(strings.ToLower(path), ".woz") {
		w, err := diskimage.ParseWoz(data)
		if err != nil {
			return err
		}
		streams = w.Disk.Streams
		fmt.Printf("woz version %d, creator %q, write-protected=%v\n", w.Info.Version, w.Info.Creator, w.Info.WriteProtected)
	} else {
		disk, err := diskimage.NewDsk(data, false, path)
		if err != nil {
			return err
		}
		streams = disk.Streams
	}

	for phase := 0; phase < diskimage.MaxPhase; phase += 4 {
		stream, ok := streams.StreamFor(phase)
		if !ok {
			continue
		}
		kind := nibble.Classify(stream.Bits)
		fmt.Printf("track %2d: %-11s (%d bits)\n", phase/4, kind, stream.Len())
	}
	return nil
}
