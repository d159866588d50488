package synth

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"github.com/liuscraft/orion-stream/internal/audio"
	"github.com/liuscraft/orion-stream/internal/logging"
	"github.com/mattn/go-shellwords"
)

// ExecSynthesizer runs an external model process per unit. The process
// reads one JSON request on stdin and writes JSON lines on stdout:
//
//	{"pcm_base64": "...", "chars": [{"char":"H","start_ms":0,"duration_ms":80}], "final": false}
//
// PCM is 16-bit little-endian mono at the configured native rate. Char
// timings are relative to the start of the unit. Every call owns its own
// process, so calls from different sessions run in parallel.
type ExecSynthesizer struct {
	cmd        []string
	voice      string
	sampleRate int
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
}

type execResponse struct {
	PCMBase64 string   `json:"pcm_base64"`
	Chars     []Record `json:"chars"`
	Final     bool     `json:"final"`
}

func NewExecSynthesizer(command, voice string, sampleRate int) (*ExecSynthesizer, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid native sample rate: %d", sampleRate)
	}
	return &ExecSynthesizer{cmd: args, voice: voice, sampleRate: sampleRate}, nil
}

// Ready reports whether the command resolves on PATH.
func (e *ExecSynthesizer) Ready() bool {
	_, err := exec.LookPath(e.cmd[0])
	return err == nil
}

func (e *ExecSynthesizer) Synthesize(ctx context.Context, text string) (Result, error) {
	payload, err := json.Marshal(execRequest{Text: text, Voice: e.voice, SampleRate: e.sampleRate})
	if err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, err
	}
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start synth command: %w", err)
	}

	result := Result{SampleRate: e.sampleRate}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var parseErr error
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			parseErr = fmt.Errorf("decode synth output: %w", err)
			break
		}
		pcm, err := audio.DecodeBase64(resp.PCMBase64)
		if err != nil {
			parseErr = err
			break
		}
		samples, err := audio.DecodePCM16(pcm)
		if err != nil {
			parseErr = err
			break
		}
		result.Samples = append(result.Samples, samples...)
		result.Chars = append(result.Chars, resp.Chars...)
		if resp.Final {
			break
		}
	}
	if parseErr == nil {
		parseErr = scanner.Err()
	}
	if parseErr != nil {
		_ = cmd.Process.Kill()
	}
	_, _ = io.Copy(io.Discard, stdout)

	waitErr := cmd.Wait()
	if parseErr != nil {
		return Result{}, parseErr
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if stderr.Len() > 0 {
			logging.Warnf("ExecSynthesizer: %s", bytes.TrimSpace(stderr.Bytes()))
		}
		return Result{}, fmt.Errorf("synth command: %w", waitErr)
	}
	return result, nil
}
