package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/packetcmd/internal/catalog"
	"github.com/taoyao-code/packetcmd/internal/client"
	"github.com/taoyao-code/packetcmd/internal/protocol/packet"
	"github.com/taoyao-code/packetcmd/internal/protocol/pktcmd"
)

var (
	sendCmd = &cobra.Command{
		Use:   "send [command] [kind:value...]",
		Short: "Sends a command frame and prints the reply",
		Example: `  pcmdctl send ping u32:7
  pcmdctl send add_int32 i32:-2 i32:3 --decode i32
  pcmdctl send int_float i32:1 f32:2.5 --decode i32,f32`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Dial(context.Background(), current.addr, current.cat, current.timeout, current.logger)
			if err != nil {
				return err
			}
			defer c.Close()

			noReply, _ := cmd.Flags().GetBool("no-reply")
			if noReply {
				if err := c.Send(args[0], args[1:]...); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "sent")
				return nil
			}

			reply, err := c.Call(args[0], args[1:]...)
			if errors.Is(err, packet.ErrNoTypeIDMatch) && reply != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "frame=%s (unrecognized type id)\n", hex.EncodeToString(reply.Frame))
				return err
			}
			if err != nil {
				if client.IsTimeout(err) {
					return fmt.Errorf("no reply within %s", current.timeout)
				}
				return err
			}
			decode, _ := cmd.Flags().GetString("decode")
			return printReply(cmd.OutOrStdout(), reply, splitKinds(decode))
		},
	}

	catalogCmd = &cobra.Command{
		Use:   "catalog",
		Short: "Prints the command catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, _ := cmd.Flags().GetBool("names")
			if names {
				for _, c := range current.cat.Commands {
					fmt.Fprintln(cmd.OutOrStdout(), c.Name)
				}
				return nil
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(current.cat)
		},
	}

	typeIDCmd = &cobra.Command{
		Use:   "typeid [hex]",
		Short: "Validates a type id and looks it up in the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := pktcmd.ParseTypeIDHex(args[0])
			if err != nil {
				return err
			}
			return printTypeID(cmd.OutOrStdout(), id, current.cat)
		},
	}
)

func init() {
	sendCmd.Flags().String("decode", "", "应答负载解码格式，逗号分隔，例如 i32,f32；rest 读取剩余字节")
	sendCmd.Flags().Bool("no-reply", false, "只发送，不等待应答")
	catalogCmd.Flags().Bool("names", false, "只输出命令名")
}

func splitKinds(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func printReply(w io.Writer, r *client.Reply, kinds []string) error {
	fmt.Fprintf(w, "command=%s type_id=%s frame=%s\n", r.Command, r.TypeID, hex.EncodeToString(r.Frame))
	if len(kinds) == 0 {
		fmt.Fprintf(w, "payload=%s\n", hex.EncodeToString(r.Payload))
		return nil
	}
	values, err := r.Decode(kinds)
	for i, v := range values {
		fmt.Fprintf(w, "  [%d] %s = %v\n", i, strings.TrimSpace(kinds[i]), v)
	}
	return err
}

func printTypeID(w io.Writer, id pktcmd.TypeID, cat *catalog.Catalog) error {
	fmt.Fprintf(w, "type_id=%s len=%d depth=%d terminal=0x%02x\n", id, id.Len(), id.Depth(), id.Terminal())
	cmd, ok := cat.FindByTypeID(id)
	if !ok {
		fmt.Fprintln(w, "command=<none>")
		return nil
	}
	fmt.Fprintf(w, "command=%s", cmd.Name)
	if cmd.Handler != "" {
		fmt.Fprintf(w, " handler=%s", cmd.Handler)
	}
	fmt.Fprintln(w)
	return nil
}
