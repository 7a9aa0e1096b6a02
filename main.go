package main

import (
	"oss.terrastruct.com/util-go/xmain"

	"github.com/eivindml/marker-dispersion/mdcli"
)

func main() {
	xmain.Main(mdcli.Run)
}
