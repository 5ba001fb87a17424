// Command geocore is a demo CLI exercising the waveform-analysis core
// end to end over synthetic data: a small array of fabricated channels
// carrying a shifted plane-wave pulse, beamformed and detected, plus a
// standalone hypocenter location example driven by a toy constant-
// velocity travel-time oracle. It reads and writes nothing from disk;
// every input is generated in-process.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "geocore",
		Usage: "demo CLI for the seismic waveform analysis core",
		Commands: []*cli.Command{
			{
				Name:  "beam",
				Usage: "beamform a synthetic plane-wave arrival across a small array",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "stations", Value: 6, Usage: "number of array elements"},
					&cli.Float64Flag{Name: "azimuth", Value: 45, Usage: "steering azimuth, degrees"},
					&cli.Float64Flag{Name: "slowness", Value: 0.12, Usage: "steering slowness, sec/km"},
					&cli.IntFlag{Name: "npts", Value: 2000, Usage: "samples per channel"},
					&cli.Float64Flag{Name: "dt", Value: 0.02, Usage: "sample interval, seconds"},
					&cli.Float64Flag{Name: "cfreq", Value: 2.0, Usage: "synthetic pulse center frequency, Hz"},
					&cli.Float64Flag{Name: "flow", Value: 1.0, Usage: "beam filter low corner, Hz"},
					&cli.Float64Flag{Name: "fhigh", Value: 4.0, Usage: "beam filter high corner, Hz"},
					&cli.IntFlag{Name: "half-window", Value: 20, Usage: "detection-trace half window, samples"},
				},
				Action: runBeam,
			},
			{
				Name:  "detect",
				Usage: "run STA/LTA detection over a synthetic single-channel pulse",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "dt", Value: 0.02, Usage: "sample interval, seconds"},
					&cli.IntFlag{Name: "npts", Value: 3000, Usage: "samples"},
					&cli.Float64Flag{Name: "cfreq", Value: 3.0, Usage: "synthetic pulse center frequency, Hz"},
					&cli.Float64Flag{Name: "flow", Value: 1.0, Usage: "prefilter low corner, Hz"},
					&cli.Float64Flag{Name: "fhigh", Value: 8.0, Usage: "prefilter high corner, Hz"},
					&cli.Float64Flag{Name: "sta-sec", Value: 0.5, Usage: "short-term average window, seconds"},
					&cli.Float64Flag{Name: "lta-sec", Value: 10, Usage: "long-term average window, seconds"},
					&cli.Float64Flag{Name: "on-ratio", Value: 3, Usage: "trigger-on STA/LTA ratio"},
					&cli.Float64Flag{Name: "off-ratio", Value: 1.5, Usage: "trigger-off STA/LTA ratio"},
					&cli.Float64Flag{Name: "snr-threshold", Value: 3, Usage: "minimum peak ratio kept as a candidate"},
				},
				Action: runDetect,
			},
			{
				Name:  "locate",
				Usage: "locate a synthetic event from travel-time observations",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "velocity", Value: 6.0, Usage: "toy oracle's constant velocity, km/s"},
					&cli.Float64Flag{Name: "depth", Value: 10, Usage: "synthetic event depth, km"},
				},
				Action: runLocate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
