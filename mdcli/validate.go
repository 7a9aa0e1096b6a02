package mdcli

import (
	"context"

	"oss.terrastruct.com/util-go/xdefer"
	"oss.terrastruct.com/util-go/xmain"
)

func validateCmd(ctx context.Context, ms *xmain.State, dedupe bool) (err error) {
	defer xdefer.Errorf(&err, "failed to validate")

	ms.Opts = xmain.NewOpts(ms.Env, ms.Opts.Flags.Args()[1:])
	if len(ms.Opts.Args) == 0 {
		return xmain.UsageErrorf("validate must be passed an input file to be validated")
	}

	inputPath := ms.Opts.Args[0]
	if inputPath != "-" {
		inputPath = ms.AbsPath(inputPath)
	}

	doc, _, err := loadDocument(ms, inputPath)
	if err != nil {
		return err
	}
	err = doc.validate(ctx, dedupe)
	if err != nil {
		return err
	}
	ms.Log.Success.Printf("%s is valid", ms.HumanPath(inputPath))
	return nil
}
