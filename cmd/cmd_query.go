package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/makodevai/gpuq"
	"github.com/makodevai/gpuq/format"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List devices",
		Args:  cobra.ExactArgs(0),
		RunE:  QueryHandler,
	}
	queryFlags(cmd)
	cmd.Flags().Bool("verbose", false, "Print every device property")
	return cmd
}

func QueryHandler(cmd *cobra.Command, _ []string) error {
	opts, err := parseQueryFlags(cmd)
	if err != nil {
		return err
	}

	devices, err := gpuq.Query(cmd.Context(), opts...)
	if err != nil {
		return err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		for _, d := range devices {
			fmt.Println(d)
			fmt.Printf("    total_memory: %s\n", format.HumanBytes2(d.TotalMemory))
			fmt.Printf("    compute: %s\n", d.Compute())
			fmt.Printf("    sms_count: %d\n", d.SMCount)
			fmt.Printf("    warp_size: %d\n", d.WarpSize)
			fmt.Printf("    l2_cache_size: %d\n", d.L2CacheSize)
			fmt.Printf("    concurrent_kernels: %t\n", d.ConcurrentKernels)
			fmt.Printf("    cooperative: %t\n", d.Cooperative)
		}
		return nil
	}

	renderDeviceTable(devices)
	return nil
}

func renderDeviceTable(devices []gpuq.Properties) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ORD", "PROVIDER", "INDEX", "SYSTEM", "NAME", "COMPUTE", "MEMORY"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")

	for _, d := range devices {
		index := "-"
		if local, ok := d.LocalIndex(); ok {
			index = strconv.Itoa(local)
		}
		table.Append([]string{
			strconv.Itoa(d.Ord),
			d.Provider.String(),
			index,
			strconv.Itoa(d.Index),
			d.Name,
			d.Compute(),
			format.HumanBytes2(d.TotalMemory),
		})
	}
	table.Render()
}

func newCountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count devices",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := parseQueryFlags(cmd)
			if err != nil {
				return err
			}
			if visible, _ := cmd.Flags().GetBool("visible"); visible {
				opts = append(opts, gpuq.WithVisibleOnly(true))
			}

			n, err := gpuq.Count(cmd.Context(), opts...)
			if err != nil {
				return err
			}

			fmt.Println(n)
			return nil
		},
	}
	queryFlags(cmd)
	cmd.Flags().Bool("visible", false, "Count only devices visible to this process")
	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get INDEX",
		Short: "Show one device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid device index %q", args[0])
			}

			opts, err := parseQueryFlags(cmd)
			if err != nil {
				return err
			}
			if visible, _ := cmd.Flags().GetBool("visible"); visible {
				opts = append(opts, gpuq.WithVisibleOnly(true))
			}

			device, err := gpuq.Get(cmd.Context(), idx, opts...)
			if err != nil {
				return err
			}

			renderDeviceTable([]gpuq.Properties{device})
			return nil
		},
	}
	queryFlags(cmd)
	cmd.Flags().Bool("visible", false, "Index only devices visible to this process")
	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show provider runtime availability",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range gpuq.Providers() {
				fmt.Printf("%-8s %t\n", p, gpuq.HasProvider(cmd.Context(), p))
			}
			return nil
		},
	}
}
