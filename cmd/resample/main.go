package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/liuscraft/orion-stream/internal/audio"
	"github.com/liuscraft/orion-stream/internal/playback"
)

func main() {
	inputRate := flag.Int("input-rate", 24000, "Native sample rate (Hz)")
	duration := flag.Float64("duration", 1.0, "Duration in seconds")
	freq := flag.Float64("freq", 440.0, "Frequency in Hz (A4 note)")
	method := flag.String("resampler", "sinc", "Resampler: sinc or linear")
	output := flag.String("output", "", "Write the 44.1 kHz result to this WAV file")
	flag.Parse()

	resampler, err := audio.NewResampler(*method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Native -> Wire Resampling Check\n")
	fmt.Printf("===============================\n")
	fmt.Printf("Input rate:  %d Hz\n", *inputRate)
	fmt.Printf("Output rate: %d Hz\n", audio.TargetSampleRate)
	fmt.Printf("Resampler:   %s\n", *method)
	fmt.Printf("Duration:    %.2f seconds\n", *duration)
	fmt.Printf("Frequency:   %.1f Hz\n\n", *freq)

	n := int(float64(*inputRate) * (*duration))
	input := make([]int16, n)
	for i := range input {
		t := float64(i) / float64(*inputRate)
		input[i] = int16(math.Sin(2*math.Pi*(*freq)*t) * 16000)
	}

	out, err := resampler.Resample(input, *inputRate, audio.TargetSampleRate, audio.Channels)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Resampling failed: %v\n", err)
		os.Exit(1)
	}

	want := audio.OutputLength(len(input), *inputRate, audio.TargetSampleRate)
	fmt.Printf("Input samples:   %d (%.2f ms)\n", len(input), audio.DurationMs(len(input), *inputRate))
	fmt.Printf("Output samples:  %d (%.2f ms)\n", len(out), audio.DurationMs(len(out), audio.TargetSampleRate))
	fmt.Printf("Expected length: %d\n", want)
	if len(out) != want {
		fmt.Fprintf(os.Stderr, "\n❌ length mismatch\n")
		os.Exit(1)
	}

	if *output != "" {
		sink, err := playback.NewWAVSink(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		if err := sink.Write(context.Background(), audio.EncodePCM16(out)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
			os.Exit(1)
		}
		if err := sink.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to finalize output: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nOutput written to: %s\n", *output)
	}

	fmt.Printf("\n✅ Resampling completed successfully!\n")
}
