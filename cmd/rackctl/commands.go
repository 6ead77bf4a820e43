package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/signalsfoundry/rackplan/internal/api"
	"github.com/signalsfoundry/rackplan/model"
	"github.com/spf13/cobra"
)

func newFitCmd(opts *rootOptions) *cobra.Command {
	var (
		size    int
		near    int
		exclude string
		check   int
	)
	cmd := &cobra.Command{
		Use:   "fit <rack>",
		Short: "Find free rack units for a device",
		Long: `fit prints the lowest free start for --size units, or the free start
closest to --near. With --check it instead reports whether the block
starting at that unit is free.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rackID := args[0]
			return opts.withPlanner(cmd, func(ctx context.Context, p planner) error {
				out := cmd.OutOrStdout()
				if check > 0 {
					resp, err := p.IsFree(ctx, &api.IsFreeRequest{RackID: rackID, Start: check, Size: size, ExcludeID: exclude})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "U%d-U%d free: %t\n", check, check+size-1, resp.Free)
					return nil
				}

				req := &api.FitRequest{RackID: rackID, Size: size, ExcludeID: exclude}
				var (
					resp *api.FitResponse
					err  error
				)
				if cmd.Flags().Changed("near") {
					req.Target = &near
					resp, err = p.NearestFit(ctx, req)
				} else {
					resp, err = p.FirstFit(ctx, req)
				}
				if err != nil {
					return err
				}
				if !resp.Found {
					return fmt.Errorf("no free block of %d units in rack %s", size, rackID)
				}
				fmt.Fprintf(out, "U%d\n", resp.Start)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 1, "device height in rack units")
	cmd.Flags().IntVar(&near, "near", 0, "preferred start unit")
	cmd.Flags().StringVar(&exclude, "exclude", "", "device whose own units count as free")
	cmd.Flags().IntVar(&check, "check", 0, "report whether the block starting here is free")
	return cmd
}

func newCapacityCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "capacity <rack>",
		Short: "Show the largest free block and any overlapping devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPlanner(cmd, func(ctx context.Context, p planner) error {
				resp, err := p.MaxContiguousFree(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Rack: %s\n", resp.RackID)
				fmt.Fprintf(out, "Units: %d\n", resp.TotalUnits)
				fmt.Fprintf(out, "Largest free block: %d\n", resp.MaxContiguousFree)
				for _, pair := range resp.Overlaps {
					fmt.Fprintf(out, "Overlap: %s %s\n", pair[0], pair[1])
				}
				return nil
			})
		},
	}
}

func newTraceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <device:kind/index[:side]>",
		Short: "Follow the cable run through a port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			return opts.withPlanner(cmd, func(ctx context.Context, p planner) error {
				resp, err := p.Trace(ctx, &api.PortRequest{Port: port})
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "#\tDEVICE\tTYPE\tPORT\tLINK")
				for i, seg := range resp.Segments {
					name := seg.DeviceName
					if name == "" {
						name = seg.DeviceID
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, name, seg.DeviceType, seg.Label, dash(seg.LinkID))
				}
				return w.Flush()
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <device:kind/index[:side]>",
		Short: "Show whether a port is connected and to what",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			return opts.withPlanner(cmd, func(ctx context.Context, p planner) error {
				resp, err := p.PortStatus(ctx, &api.PortRequest{Port: port})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Port: %s (%s)\n", resp.Port, resp.Name)
				if !resp.Connected {
					fmt.Fprintln(out, "Connected: no")
					return nil
				}
				fmt.Fprintln(out, "Connected: yes")
				fmt.Fprintf(out, "Link: %s\n", resp.LinkID)
				fmt.Fprintf(out, "Peer: %s\n", resp.PeerName)
				return nil
			})
		},
	}
}

func newLinksCmd(opts *rootOptions) *cobra.Command {
	var showDropped bool
	cmd := &cobra.Command{
		Use:   "links",
		Short: "List active links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPlanner(cmd, func(ctx context.Context, p planner) error {
				resp, err := p.ActiveLinks(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tFROM\tTO\tKIND\tSPEED")
				for _, l := range resp.Links {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.ID, l.From, l.To, l.Kind, dash(string(l.Speed)))
				}
				if showDropped {
					for _, d := range resp.Dropped {
						fmt.Fprintf(w, "%s\t%s\t%s\tdropped\t%s\n", d.Link.ID, d.Link.From, d.Link.To, d.Reason)
					}
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&showDropped, "dropped", false, "also list stored links left out of the active set")
	return cmd
}

func newConnectCmd(opts *rootOptions) *cobra.Command {
	var (
		speed string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "connect <port> <port>",
		Short: "Cable two ports together",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parsePort(args[0])
			if err != nil {
				return err
			}
			b, err := parsePort(args[1])
			if err != nil {
				return err
			}
			return opts.withPlanner(cmd, func(ctx context.Context, p planner) error {
				resp, err := p.Connect(ctx, &api.ConnectRequest{
					A:     a,
					B:     b,
					Speed: model.Speed(strings.ToUpper(speed)),
					Force: force,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Connected %s: %s <-> %s\n", resp.Link.ID, resp.Link.From, resp.Link.To)
				for _, r := range resp.Replaced {
					fmt.Fprintf(out, "Replaced %s\n", r.ID)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&speed, "speed", "", "link speed (100M, 1G, 10G, 25G, 40G, 100G)")
	cmd.Flags().BoolVar(&force, "force", false, "replace links already on either port")
	return cmd
}

func newDisconnectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <link-id>",
		Short: "Remove a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPlanner(cmd, func(ctx context.Context, p planner) error {
				if err := p.Disconnect(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newPlaceCmd(opts *rootOptions) *cobra.Command {
	var (
		rackID string
		near   int
	)
	cmd := &cobra.Command{
		Use:   "place <device>",
		Short: "Move a device to free units",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &api.PlaceDeviceRequest{DeviceID: args[0], RackID: rackID}
			if cmd.Flags().Changed("near") {
				req.Target = &near
			}
			return opts.withPlanner(cmd, func(ctx context.Context, p planner) error {
				resp, err := p.PlaceDevice(ctx, req)
				if err != nil {
					return err
				}
				d := resp.Device
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s U%d-U%d\n", d.ID, d.RackID, d.UnitStart, d.UnitEnd())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rackID, "rack", "", "destination rack (default: current rack)")
	cmd.Flags().IntVar(&near, "near", 0, "preferred start unit")
	return cmd
}

func newHealCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "heal",
		Short: "Delete stale and superseded links from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withPlanner(cmd, func(ctx context.Context, p planner) error {
				resp, err := p.Heal(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, d := range resp.Removed {
					fmt.Fprintf(out, "Removed %s (%s)\n", d.Link.ID, d.Reason)
				}
				fmt.Fprintf(out, "%s removed\n", plural(len(resp.Removed), "link"))
				return nil
			})
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
