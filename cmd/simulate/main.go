// Command simulate runs a deterministic congestion-control experiment
// over a single bottleneck link and prints a summary of the run.
package main

import (
	"flag"
	"fmt"

	"github.com/apex/log"
	"github.com/bassosimone/netrlsim"
)

func main() {
	traceFile := flag.String("trace", "", "path to the trace JSON file (required)")
	lookupTableFile := flag.String("lookup-table", "", "path to the auto-encoder lookup table CSV (required for --app video_streaming)")
	saveDir := flag.String("save-dir", ".", "directory in which to write the run's CSV logs")
	ccName := flag.String("cc", "aurora", "congestion control algorithm: aurora, bbr, gcc, oracle, oracle_no_predict")
	appName := flag.String("app", "file_transfer", "application: file_transfer, video_streaming")
	seed := flag.Int64("seed", 0, "seed for the run's deterministic RNG")
	duration := flag.Float64("duration", 30, "duration of the experiment in seconds")
	aeGuided := flag.Bool("ae-guided", false, "use Aurora's application-aware reward mode")
	flag.Parse()

	if *traceFile == "" {
		log.Fatal("missing required -trace flag")
	}

	trace, err := netsim.LoadTraceFile(*traceFile)
	if err != nil {
		log.WithError(err).Fatal("netsim.LoadTraceFile")
	}

	cc, err := parseCCKind(*ccName)
	if err != nil {
		log.WithError(err).Fatal("parseCCKind")
	}

	app, err := parseAppKind(*appName)
	if err != nil {
		log.WithError(err).Fatal("parseAppKind")
	}

	var lookupTable *netsim.LookupTable
	if app == netsim.AppVideoStreaming {
		if *lookupTableFile == "" {
			log.Fatal("missing required -lookup-table flag for -app video_streaming")
		}
		lookupTable, err = netsim.LoadLookupTable(*lookupTableFile)
		if err != nil {
			log.WithError(err).Fatal("netsim.LoadLookupTable")
		}
	}

	recorder, err := netsim.NewStatsRecorder(*saveDir, log.Log)
	if err != nil {
		log.WithError(err).Fatal("netsim.NewStatsRecorder")
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			log.WithError(err).Warn("recorder.Close")
		}
	}()

	sim, err := netsim.NewSimulator(netsim.SimulatorOptions{
		Trace:       trace,
		Cfg:         netsim.DefaultSimConfig(),
		Seed:        *seed,
		CC:          cc,
		App:         app,
		LookupTable: lookupTable,
		AEGuided:    *aeGuided,
		Recorder:    recorder,
		Logger:      log.Log,
	})
	if err != nil {
		log.WithError(err).Fatal("netsim.NewSimulator")
	}

	sim.Run(*duration)

	summary, err := recorder.Summarize()
	if err != nil {
		log.WithError(err).Fatal("recorder.Summarize")
	}
	fmt.Printf("rtt_mean_ms,rtt_median_ms,rtt_p95_ms,owd_mean_ms,owd_median_ms,owd_p95_ms\n")
	fmt.Printf("%f,%f,%f,%f,%f,%f\n",
		summary.RTTMeanMs, summary.RTTMedianMs, summary.RTTP95Ms,
		summary.OWDMeanMs, summary.OWDMedianMs, summary.OWDP95Ms)
}

func parseCCKind(name string) (netsim.CCKind, error) {
	switch name {
	case "aurora":
		return netsim.CCAurora, nil
	case "bbr":
		return netsim.CCBBR, nil
	case "gcc":
		return netsim.CCGCC, nil
	case "oracle":
		return netsim.CCOracle, nil
	case "oracle_no_predict":
		return netsim.CCOracleNoPredict, nil
	default:
		return 0, fmt.Errorf("unknown -cc value %q", name)
	}
}

func parseAppKind(name string) (netsim.AppKind, error) {
	switch name {
	case "file_transfer":
		return netsim.AppFileTransfer, nil
	case "video_streaming":
		return netsim.AppVideoStreaming, nil
	default:
		return 0, fmt.Errorf("unknown -app value %q", name)
	}
}
