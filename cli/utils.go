package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	prettyjson "github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"
)

var errInvalidShape = errors.New("invalid shape, expected e.g. 784x10,10")

func logJSONCmd(cmd cobra.Command, iList ...any) {
	for _, i := range iList {
		m, err := json.Marshal(i)
		if err != nil {
			logErrorCmd(cmd, err)

			return
		}

		pj, err := prettyjson.Format(m)
		if err != nil {
			logErrorCmd(cmd, err)

			return
		}

		cmd.Print(string(pj) + "\n\n")
	}
}

func logUsageCmd(cmd cobra.Command, u string) {
	cmd.Printf(color.YellowString("\nusage: %s\n\n"), u)
}

func logErrorCmd(cmd cobra.Command, err error) {
	boldRed := color.New(color.FgRed, color.Bold)
	boldRed.Fprint(cmd.ErrOrStderr(), "\nerror: ")

	cmd.PrintErrf("%s\n\n", color.RedString(err.Error()))
}

func logOKCmd(cmd cobra.Command) {
	cmd.Print(color.BlueString("\nok\n\n"))
}

// parseShape turns "784x10,10" into [[784 10] [10]].
func parseShape(s string) ([][]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var shapes [][]int
	for _, tensor := range strings.Split(s, ",") {
		var dims []int
		for _, d := range strings.Split(strings.TrimSpace(tensor), "x") {
			n, err := strconv.Atoi(d)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: %q", errInvalidShape, tensor)
			}
			dims = append(dims, n)
		}
		shapes = append(shapes, dims)
	}

	return shapes, nil
}
