package mdcli

import (
	"fmt"
	"path/filepath"

	"oss.terrastruct.com/util-go/xmain"

	"github.com/eivindml/marker-dispersion/lib/version"
)

func help(ms *xmain.State) {
	fmt.Fprintf(ms.Stdout, `%[1]s %[2]s
Usage:
  %[1]s [--iterations=120] [--frames] [--watch] labels.yml [out.json | out.svg]
  %[1]s validate labels.yml

%[1]s spreads overlapping map labels apart and writes where each one settled,
along with the text and icon offsets to draw it at. Input is YAML or JSON with
labels already in screen space, or locations plus the viewport to project them
through. Passes listed under moves are resolved in order, each starting from the
positions of the one before, or at their old offset from the moved anchor with
--carry-offsets. A pass may also name a GeoJSON file of point
features to read locations from.

With --watch the input is resolved again on every change, starting from where
the previous run left each label.

Output defaults to JSON on stdout. Use - to read from stdin or write to stdout.

Flags:
%[3]s

Subcommands:
  %[1]s validate labels.yml - Checks labels.yml without resolving it
  %[1]s version - Prints the version
`, filepath.Base(ms.Name), version.Version, ms.Opts.Defaults())
}
