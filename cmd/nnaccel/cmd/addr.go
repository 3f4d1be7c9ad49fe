package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nnaccel/accel/addressing"
)

type generator struct {
	args []string
	fn   func(idx []int) (int, error)
}

var generators = map[string]generator{
	"conv-weight": {
		[]string{"kernel", "word"},
		func(i []int) (int, error) { return addressing.CheckedConvWeight(i[0], i[1]) },
	},
	"conv-feature": {
		[]string{"row-group", "chunk", "word"},
		func(i []int) (int, error) {
			return addressing.CheckedConvFeature(i[0], i[1], i[2])
		},
	},
	"conv-result": {
		[]string{"kernel", "row-group", "chunk", "wb"},
		func(i []int) (int, error) {
			return addressing.CheckedConvResult(i[0], i[1], i[2], i[3])
		},
	},
	"matmul-l1-weight": {
		[]string{"col", "word"},
		func(i []int) (int, error) {
			return addressing.CheckedMatmulL1Weight(i[0], i[1])
		},
	},
	"matmul-l2-weight": {
		[]string{"col", "word"},
		func(i []int) (int, error) {
			return addressing.CheckedMatmulL2Weight(i[0], i[1])
		},
	},
	"matmul-feature": {
		[]string{"row-group", "word"},
		func(i []int) (int, error) {
			return addressing.CheckedMatmulFeature(i[0], i[1])
		},
	},
	"matmul-result": {
		[]string{"col", "row-group", "wb"},
		func(i []int) (int, error) {
			return addressing.CheckedMatmulResult(i[0], i[1], i[2])
		},
	},
	"hidden": {
		[]string{"col", "wb"},
		func(i []int) (int, error) {
			return addressing.CheckedHiddenAddress(i[0], i[1])
		},
	},
}

func generatorNames() []string {
	names := make([]string, 0, len(generators))
	for n := range generators {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

func generatorUsage() string {
	var b strings.Builder

	for _, n := range generatorNames() {
		fmt.Fprintf(&b, "  %s %s\n", n, strings.Join(generators[n].args, " "))
	}

	return b.String()
}

var addrCmd = &cobra.Command{
	Use:   "addr GENERATOR INDEX...",
	Short: "Print the memory address produced by an address generator.",
	Long: "`addr` evaluates one address generator on the given indices and " +
		"prints the address in decimal and hexadecimal. Generators:\n\n" +
		generatorUsage(),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := evalAddress(args[0], args[1:])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d (0x%x)\n", addr, addr)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(addrCmd)
}

func evalAddress(name string, args []string) (int, error) {
	g, ok := generators[name]
	if !ok {
		return 0, fmt.Errorf("unknown generator %q, want one of %s",
			name, strings.Join(generatorNames(), ", "))
	}

	if len(args) != len(g.args) {
		return 0, fmt.Errorf("%s takes %d indices (%s), got %d",
			name, len(g.args), strings.Join(g.args, " "), len(args))
	}

	idx := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return 0, fmt.Errorf("%s %q: %w", g.args[i], a, err)
		}

		idx[i] = v
	}

	return g.fn(idx)
}
