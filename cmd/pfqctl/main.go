// Command pfqctl drives a local PFQ control plane from the shell: join
// or bind groups, push compiled pfq-lang programs, and read back
// status/stats, the same operations spec §6 documents as the control
// surface.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pfq-dev/go-pfq"
	"github.com/pfq-dev/go-pfq/internal/group"
	"github.com/pfq-dev/go-pfq/internal/lang"
	"github.com/pfq-dev/go-pfq/internal/netdev"
	"github.com/pfq-dev/go-pfq/internal/wire"
)

var policyNames = map[string]group.Policy{
	"undefined":  group.Undefined,
	"private":    group.Private,
	"restricted": group.Restricted,
	"shared":     group.Shared,
}

func openPFQ() (*pfq.PFQ, error) {
	devices, err := netdev.New()
	if err != nil {
		return nil, fmt.Errorf("resolve devices: %w", err)
	}
	return pfq.Open(pfq.DefaultConfig(), devices, nil)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pfqctl",
		Short: "Control plane CLI for a local PFQ instance",
	}
	root.AddCommand(
		newSocketOpenCmd(),
		newEnableCmd(),
		newGroupJoinCmd(),
		newGroupBindCmd(),
		newGroupUnbindCmd(),
		newGroupFunctionCmd(),
		newCompileCmd(),
		newStatusCmd(),
		newStatsCmd(),
	)
	return root
}

// newCompileCmd builds a linear monadic chain (each stage feeding the
// next) from a comma-separated symbol list and writes it to disk in the
// format group-function loads, e.g. `pfqctl compile --chain ip,kernel
// --out forward-to-kernel.pfqprog`.
func newCompileCmd() *cobra.Command {
	var chain string
	var out string
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a linear chain of monadic functions into a loadable program",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := strings.Split(chain, ",")
			if len(names) == 0 || (len(names) == 1 && names[0] == "") {
				return fmt.Errorf("--chain must name at least one function")
			}
			descrs := make([]lang.Descr, len(names))
			for i, name := range names {
				next := i + 1
				if next == len(names) {
					next = -1
				}
				descrs[i] = lang.Descr{
					Kind:   lang.KindMonadic,
					Symbol: strings.TrimSpace(name),
					LIndex: next,
					RIndex: next,
					PIndex: -1,
				}
			}
			buf := wire.EncodeProgram(descrs, 0)
			if err := os.WriteFile(out, buf, 0o644); err != nil {
				return fmt.Errorf("write program file: %w", err)
			}
			fmt.Printf("wrote %d-node program to %s\n", len(descrs), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&chain, "chain", "", "comma-separated monadic function names, e.g. ip,kernel")
	cmd.Flags().StringVar(&out, "out", "program.pfqprog", "output file path")
	cmd.MarkFlagRequired("chain")
	return cmd
}

func newSocketOpenCmd() *cobra.Command {
	var uid int32
	cmd := &cobra.Command{
		Use:   "socket-open",
		Short: "Open a new socket and print its id",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPFQ()
			if err != nil {
				return err
			}
			s := p.Control().OpenSocket(uid)
			fmt.Println(s.ID())
			return nil
		},
	}
	cmd.Flags().Int32Var(&uid, "uid", 0, "owning user id recorded on the socket")
	return cmd
}

func newEnableCmd() *cobra.Command {
	var sid int32
	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Allocate a socket's Rx/Tx shared queues (ENABLE)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPFQ()
			if err != nil {
				return err
			}
			return p.Control().Enable(sid, 0)
		},
	}
	cmd.Flags().Int32Var(&sid, "sid", 0, "socket id")
	cmd.MarkFlagRequired("sid")
	return cmd
}

func newGroupJoinCmd() *cobra.Command {
	var sid, gid int32
	var classMask uint64
	var policy string
	cmd := &cobra.Command{
		Use:   "group-join",
		Short: "Join (or create) a group (GROUP_JOIN)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPFQ()
			if err != nil {
				return err
			}
			pol, ok := policyNames[policy]
			if !ok {
				return fmt.Errorf("unknown policy %q", policy)
			}
			joined, err := p.Control().GroupJoin(sid, gid, classMask, pol)
			if err != nil {
				return err
			}
			fmt.Println(joined)
			return nil
		},
	}
	cmd.Flags().Int32Var(&sid, "sid", 0, "socket id")
	cmd.Flags().Int32Var(&gid, "gid", pfq.AutoAssignGroupID, "requested group id, or auto-assign")
	cmd.Flags().Uint64Var(&classMask, "class-mask", 1, "eligible class bitmask")
	cmd.Flags().StringVar(&policy, "policy", "shared", "undefined|private|restricted|shared")
	cmd.MarkFlagRequired("sid")
	return cmd
}

func newGroupBindCmd() *cobra.Command {
	var gid, ifindex, queue int32
	cmd := &cobra.Command{
		Use:   "group-bind",
		Short: "Bind a group to a device/queue pair (GROUP_BIND)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPFQ()
			if err != nil {
				return err
			}
			return p.Control().GroupBind(gid, ifindex, queue)
		},
	}
	cmd.Flags().Int32Var(&gid, "gid", 0, "group id")
	cmd.Flags().Int32Var(&ifindex, "ifindex", 0, "device ifindex")
	cmd.Flags().Int32Var(&queue, "queue", 0, "hardware queue")
	cmd.MarkFlagRequired("gid")
	cmd.MarkFlagRequired("ifindex")
	return cmd
}

func newGroupUnbindCmd() *cobra.Command {
	var gid, ifindex, queue int32
	cmd := &cobra.Command{
		Use:   "group-unbind",
		Short: "Unbind a group from a device/queue pair (GROUP_UNBIND)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPFQ()
			if err != nil {
				return err
			}
			return p.Control().GroupUnbind(gid, ifindex, queue)
		},
	}
	cmd.Flags().Int32Var(&gid, "gid", 0, "group id")
	cmd.Flags().Int32Var(&ifindex, "ifindex", 0, "device ifindex")
	cmd.Flags().Int32Var(&queue, "queue", 0, "hardware queue")
	cmd.MarkFlagRequired("gid")
	cmd.MarkFlagRequired("ifindex")
	return cmd
}

func newGroupFunctionCmd() *cobra.Command {
	var gid int32
	var programFile string
	var clear bool
	cmd := &cobra.Command{
		Use:   "group-function",
		Short: "Load a compiled pfq-lang program onto a group (GROUP_FUNCTION)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPFQ()
			if err != nil {
				return err
			}
			if clear {
				return p.Control().GroupFunction(gid, "cleared", nil, 0)
			}
			if programFile == "" {
				return fmt.Errorf("--program-file is required unless --clear is set")
			}
			raw, err := os.ReadFile(programFile)
			if err != nil {
				return fmt.Errorf("read program file: %w", err)
			}
			descrs, entryPoint, err := wire.DecodeProgram(raw)
			if err != nil {
				return fmt.Errorf("decode program: %w", err)
			}
			return p.Control().GroupFunction(gid, programFile, descrs, entryPoint)
		},
	}
	cmd.Flags().Int32Var(&gid, "gid", 0, "group id")
	cmd.Flags().StringVar(&programFile, "program-file", "", "path to a program produced by pfqctl compile")
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the group's bound program instead of loading one")
	cmd.MarkFlagRequired("gid")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var sid int32
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a socket's status (GET_STATUS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPFQ()
			if err != nil {
				return err
			}
			st, err := p.Control().Status(sid)
			if err != nil {
				return err
			}
			fmt.Printf("enabled=%v caplen=%d rx_slots=%d tx_slots=%d weight=%d rx_tstamp=%v\n",
				st.Enabled, st.Caplen, st.RxSlots, st.TxSlots, st.Weight, st.RxTstamp)
			return nil
		},
	}
	cmd.Flags().Int32Var(&sid, "sid", 0, "socket id")
	cmd.MarkFlagRequired("sid")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var sid int32
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a socket's aggregated group stats (GET_STATS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPFQ()
			if err != nil {
				return err
			}
			st, err := p.Control().Stats(sid)
			if err != nil {
				return err
			}
			fmt.Printf("recv=%d lost=%d drop=%d sent=%d disc=%d fail=%d frwd=%d kern=%d\n",
				st.Recv, st.Lost, st.Drop, st.Sent, st.Disc, st.Fail, st.Frwd, st.Kern)
			return nil
		},
	}
	cmd.Flags().Int32Var(&sid, "sid", 0, "socket id")
	cmd.MarkFlagRequired("sid")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pfqctl:", err)
		os.Exit(1)
	}
}
