package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/liuscraft/orion-stream/internal/audio"
	"github.com/liuscraft/orion-stream/internal/playback"
	"github.com/liuscraft/orion-stream/internal/synth"
)

func main() {
	play := flag.Bool("play", false, "Speak a test phrase through the default output device")
	phrase := flag.String("phrase", "Testing one two three.", "Phrase rendered by the mock synthesizer")
	frames := flag.Int("frames", playback.DefaultSpeakerFrames, "Frames per buffer for the test stream")
	flag.Parse()

	fmt.Println("=== PortAudio Output Diagnostics ===")
	fmt.Println()

	if err := portaudio.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize PortAudio: %v\n", err)
		os.Exit(1)
	}
	listOutputs()
	// 测试播放会重新初始化
	_ = portaudio.Terminate()

	if *play {
		if err := speak(*phrase, *frames); err != nil {
			fmt.Fprintf(os.Stderr, "Playback test failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func listOutputs() {
	defaultOutput, err := portaudio.DefaultOutputDevice()
	if err != nil {
		fmt.Printf("Default Output Device: (error: %v)\n", err)
	} else {
		fmt.Printf("Default Output Device: %s\n", defaultOutput.Name)
	}
	fmt.Println()

	devices, err := portaudio.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get devices: %v\n", err)
		return
	}

	for i, dev := range devices {
		if dev.MaxOutputChannels == 0 {
			continue
		}
		marker := ""
		if defaultOutput != nil && dev.Name == defaultOutput.Name {
			marker = " [DEFAULT OUTPUT]"
		}
		fmt.Printf("[%d] %s%s\n", i, dev.Name, marker)
		fmt.Printf("    Max Output Channels: %d\n", dev.MaxOutputChannels)
		fmt.Printf("    Default Sample Rate: %.0f Hz\n", dev.DefaultSampleRate)
		fmt.Printf("    Output Latency: Low=%.1fms, High=%.1fms\n",
			dev.DefaultLowOutputLatency.Seconds()*1000,
			dev.DefaultHighOutputLatency.Seconds()*1000)

		params := portaudio.HighLatencyParameters(nil, dev)
		params.Output.Channels = audio.Channels
		params.SampleRate = float64(audio.TargetSampleRate)
		if err := portaudio.IsFormatSupported(params, []int16{}); err != nil {
			fmt.Printf("    ⚠️  %d Hz mono int16 not supported: %v\n", audio.TargetSampleRate, err)
		}
		fmt.Println()
	}
}

func speak(phrase string, frames int) error {
	adapter := synth.NewAdapter(synth.NewMockSynthesizer(), synth.AdapterConfig{})
	chunk, err := adapter.Synthesize(context.Background(), phrase)
	if err != nil {
		return err
	}

	sink, err := playback.NewSpeakerSink(frames)
	if err != nil {
		return err
	}
	defer sink.Close()

	fmt.Printf("Playing %q (%.0f ms)...\n", phrase, chunk.DurationMs)
	start := time.Now()
	if err := sink.Write(context.Background(), chunk.PCM); err != nil {
		return err
	}
	elapsed := time.Since(start)
	fmt.Printf("Wrote %d bytes in %v (audio %.0f ms)\n", len(chunk.PCM), elapsed.Round(time.Millisecond), chunk.DurationMs)
	return nil
}
