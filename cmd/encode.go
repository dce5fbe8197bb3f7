package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xtmatch/xtmatch/internal/bpf"
	"github.com/xtmatch/xtmatch/internal/portrange"
	"github.com/xtmatch/xtmatch/internal/u32"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a match as its kernel binary record",
}

var encodeU32Cmd = &cobra.Command{
	Use:   "u32 EXPRESSION",
	Short: "Encode a u32 expression as a hex xt_u32 record, or as BPF bytecode",
	Args:  cobra.ExactArgs(1),
	RunE:  runEncodeU32,
}

var encodePortCmd = &cobra.Command{
	Use:   "port",
	Short: "Encode UDP or TCP port ranges as a hex xt_udp record",
	RunE:  runEncodePort,
}

var (
	encodeInvert   bool
	encodeBPF      bool
	encodeATMode   string
	encodeProto    string
	encodeSrcPorts string
	encodeDstPorts string
)

func init() {
	encodeU32Cmd.Flags().BoolVar(&encodeInvert, "invert", false, "Negate the match")
	encodeU32Cmd.Flags().BoolVar(&encodeBPF, "bpf", false, "Print one BPF program per test instead of the record")
	encodeU32Cmd.Flags().StringVar(&encodeATMode, "at-mode", "absolute", "@ semantics for --bpf: absolute, cumulative")

	encodePortCmd.Flags().StringVar(&encodeProto, "proto", "udp", "Protocol used to resolve service names")
	encodePortCmd.Flags().StringVar(&encodeSrcPorts, "source-port", "", "Source port spec, [!]port[:port]")
	encodePortCmd.Flags().StringVar(&encodeDstPorts, "destination-port", "", "Destination port spec, [!]port[:port]")

	encodeCmd.AddCommand(encodeU32Cmd)
	encodeCmd.AddCommand(encodePortCmd)
	rootCmd.AddCommand(encodeCmd)
}

func runEncodeU32(cmd *cobra.Command, args []string) error {
	mode, err := u32.ParseATMode(encodeATMode)
	if err != nil {
		return err
	}
	m, err := u32.Parse(args[0], u32.WithATMode(mode))
	if err != nil {
		return err
	}
	if encodeInvert {
		m.Invert = !m.Invert
	}

	if encodeBPF {
		if m.Invert {
			return fmt.Errorf("--bpf cannot express an inverted match")
		}
		for _, t := range m.Tests() {
			code, err := bpf.CompileTest(&t, mode).Bytecode()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), code)
		}
		return nil
	}

	data, err := m.Info().MarshalBinary()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(data))
	return nil
}

func runEncodePort(cmd *cobra.Command, args []string) error {
	record, err := portrange.Parse(strings.ToLower(encodeProto), encodeSrcPorts, encodeDstPorts)
	if err != nil {
		return err
	}
	data, err := record.Info().MarshalBinary()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(data))
	return nil
}
