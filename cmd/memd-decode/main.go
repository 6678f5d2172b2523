// Command memd-decode decodes a capture of concatenated response packets and
// prints the result each one produces.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pior/memd"
	"github.com/pior/memd/mcbp"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML client config")
	subdocCount := flag.Int("subdoc-count", 16, "path count assumed for multi-path responses")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: memd-decode [-config file] <capture>")
		os.Exit(2)
	}

	config := memd.DefaultConfig()
	if *configPath != "" {
		var err error
		if config, err = memd.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "memd-decode: %v\n", err)
			os.Exit(1)
		}
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "memd-decode: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	topology := memd.NewStaticTopology(config.Bucket, config.Nodes, config.NumVBuckets)
	dispatcher := memd.NewDispatcher(memd.DispatcherConfig{
		Logger:             logger,
		Topology:           topology,
		CollectionsEnabled: config.CollectionsEnabled,
		Decompressor:       memd.NewSnappyDecompressor(),
	})

	pipeline := &memd.Pipeline{Index: 0, Tokens: &memd.TokenTable{}}
	printCallback := func(_ any, cbtype memd.CallbackType, res memd.Result) {
		printResult(cbtype, res)
	}

	var offset, packets int
	for offset < len(data) {
		env, n, err := mcbp.ParseEnvelope(data[offset:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "memd-decode: offset %d: %v\n", offset, err)
			os.Exit(1)
		}

		req := &memd.Request{
			Opcode:      env.Opcode,
			Opaque:      env.Opaque,
			Flags:       memd.FlagPrivateCallback,
			SubdocCount: *subdocCount,
			Callback:    printCallback,
		}
		fmt.Printf("#%d opcode=%s opaque=%d status=0x%04x body=%d\n",
			packets, env.Opcode, env.Opaque, uint16(env.Status), env.BodyLen())
		if err := dispatcher.Dispatch(pipeline, req, env, memd.Success); err != nil {
			fmt.Printf("  error: %v\n", err)
		}

		offset += n
		packets++
	}

	s := dispatcher.Stats()
	fmt.Printf("%d packets, %d results, %d protocol errors, %d tokens merged\n",
		packets, s.Delivered, s.ProtocolErrors, s.TokensMerged)
}

func printResult(cbtype memd.CallbackType, res memd.Result) {
	ctx := res.Ctx()
	fmt.Printf("  %s: status=%s cas=%d final=%t\n", cbtype, ctx.Status, ctx.CAS, ctx.Final)
	if ref, ok := ctx.ErrorRef(); ok {
		fmt.Printf("  ref=%s\n", ref)
	}
	if msg, ok := ctx.ErrorContext(); ok {
		fmt.Printf("  context=%s\n", msg)
	}

	switch r := res.(type) {
	case *memd.GetResult:
		fmt.Printf("  flags=0x%08x datatype=0x%02x value=%q\n", r.ItemFlags, uint8(r.Datatype), r.Value)
	case *memd.ReplicaResult:
		fmt.Printf("  flags=0x%08x datatype=0x%02x value=%q\n", r.ItemFlags, uint8(r.Datatype), r.Value)
	case *memd.StoreResult:
		printToken(r.MutationToken())
	case *memd.RemoveResult:
		printToken(r.MutationToken())
	case *memd.CounterResult:
		fmt.Printf("  value=%d\n", r.Value)
		printToken(r.MutationToken())
	case *memd.SubdocResult:
		for _, e := range r.Entries {
			if e.Present {
				fmt.Printf("  [%d] %s %q\n", e.Index, e.Status, e.Value)
			}
		}
	case *memd.ObserveResult:
		fmt.Printf("  key=%q vb=%d state=0x%02x master=%t ttp=%d ttr=%d\n", r.Key, r.VBucket, r.State, r.IsMaster, r.TTP, r.TTR)
	case *memd.ObserveSeqnoResult:
		fmt.Printf("  vb=%d uuid=%d persisted=%d current=%d failed_over=%t\n",
			r.VBucket, r.UUID, r.PersistedSeqno, r.CurrentSeqno, r.FailedOver)
	case *memd.StatsResult:
		fmt.Printf("  %s=%s\n", r.StatKey, r.StatValue)
	case *memd.ExistsResult:
		fmt.Printf("  exists=%t deleted=%t seqno=%d\n", r.Exists(), r.Deleted, r.Seqno)
	case *memd.CollectionIDResult:
		fmt.Printf("  manifest=%d cid=%d\n", r.ManifestID, r.CollectionID)
	case *memd.ManifestResult:
		fmt.Printf("  manifest=%s\n", r.Value)
	}
}

func printToken(tok memd.MutationToken, ok bool) {
	if ok {
		fmt.Printf("  token vb=%d uuid=%d seqno=%d\n", tok.VBucket, tok.UUID, tok.Seqno)
	}
}
