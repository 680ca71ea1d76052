package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/datviz/datviz-app/internal/iplookup"
	"github.com/datviz/datviz-app/internal/stream"
)

func newIPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ip",
		Short: "Print this machine's public IP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := iplookup.New(cliConfig.Endpoint, cliConfig.Timeout).Lookup(cmd.Context())
			if !res.OK() {
				return fmt.Errorf("lookup public ip: %w", res.Err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.IP)
			return nil
		},
	}
}

// resolveIP returns ip, or this machine's public IP when ip is empty.
func resolveIP(ctx context.Context, ip string) (string, error) {
	if ip != "" {
		return ip, nil
	}
	res := iplookup.New(cliConfig.Endpoint, cliConfig.Timeout).Lookup(ctx)
	if !res.OK() {
		return "", fmt.Errorf("lookup public ip (pass --ip to skip): %w", res.Err)
	}
	return res.IP, nil
}

func newCheckCmd() *cobra.Command {
	var ip string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a user is registered from an IP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := resolveIP(cmd.Context(), ip)
			if err != nil {
				return err
			}
			reply, err := newAPIClient(cliConfig).check(cmd.Context(), addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s uuid=%s\n", reply.Status, reply.UUID)
			return nil
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "public IP to check (default: look it up)")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var email, ip string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user by email and public IP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("--email is required")
			}
			addr, err := resolveIP(cmd.Context(), ip)
			if err != nil {
				return err
			}
			reply, err := newAPIClient(cliConfig).register(cmd.Context(), email, addr)
			if err != nil {
				return err
			}
			credits := 0
			if reply.AvailableCredits != nil {
				credits = *reply.AvailableCredits
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status=%s uuid=%s credits=%d\n", reply.Status, reply.UUID, credits)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&ip, "ip", "", "public IP (default: look it up)")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var uuid string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show a user's recent graph prompts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reply, err := newAPIClient(cliConfig).history(cmd.Context(), uuid)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(reply.Exchanges) == 0 {
				fmt.Fprintln(out, "no prompts yet")
			}
			for _, ex := range reply.Exchanges {
				fmt.Fprintf(out, "%s  %-7s  %3d credits  %q\n",
					time.Unix(ex.Ts, 0).Format(time.DateTime), ex.Status, ex.Credits, ex.Prompt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&uuid, "uuid", "", "user identifier")
	_ = cmd.MarkFlagRequired("uuid")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var (
		frames        int
		width, height int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to the background stream and report frame statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wsURL, err := streamURL(cliConfig.BaseURL, width, height)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cliConfig.Timeout)
			v, err := stream.Dial(ctx, wsURL)
			cancel()
			if err != nil {
				return err
			}
			defer v.Close()

			out := cmd.OutOrStdout()
			s := v.Started()
			fmt.Fprintf(out, "view %s %dx%d particles=%d\n", s.ViewID, s.Width, s.Height, s.Particles)

			start := time.Now()
			for i := 0; i < frames; i++ {
				ctx, cancel := context.WithTimeout(cmd.Context(), cliConfig.Timeout)
				f, err := v.NextFrame(ctx)
				cancel()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "frame %d discs=%d lines=%d\n", f.Seq, len(f.Discs), len(f.Lines))
			}
			st := v.Stats()
			elapsed := time.Since(start)
			fps := 0.0
			if elapsed > 0 {
				fps = float64(st.Frames) / elapsed.Seconds()
			}
			fmt.Fprintf(out, "connect=%s frames=%d fps=%.1f\n", st.ConnectLatency.Round(time.Millisecond), st.Frames, fps)
			return nil
		},
	}
	cmd.Flags().IntVar(&frames, "frames", 30, "number of frames to read")
	cmd.Flags().IntVar(&width, "w", 0, "viewport width (server default when 0)")
	cmd.Flags().IntVar(&height, "h", 0, "viewport height (server default when 0)")
	return cmd
}
