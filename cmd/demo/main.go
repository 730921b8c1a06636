// Command demo wires the pipeline library to a live microphone and speaker
// via malgo, bridging PipelineEvents out over a websocket so a browser (or
// any wsjson client) can watch a translation session happen in real time.
// This is reference wiring only — capture, transport and CLI live outside
// the pipeline library itself.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/voxlink-ai/translingo/pkg/pipeline"
	asrProvider "github.com/voxlink-ai/translingo/pkg/providers/asr"
	mtProvider "github.com/voxlink-ai/translingo/pkg/providers/mt"
	vadProvider "github.com/voxlink-ai/translingo/pkg/providers/vad"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("note: no .env file found, using system environment variables")
	}

	demoCfg, err := loadDemoConfig()
	if err != nil {
		log.Fatalf("demo config: %v", err)
	}

	logger := pipeline.NewLogrusLogger(logrus.StandardLogger())

	asrPort, err := buildASR(demoCfg)
	if err != nil {
		log.Fatal(err)
	}
	mtPort, err := buildMT(demoCfg)
	if err != nil {
		log.Fatal(err)
	}
	vadPort := buildVAD(demoCfg)

	cfg := pipeline.DefaultConfig()
	cfg.SourceLang = demoCfg.SourceLang
	cfg.TargetLang = demoCfg.TargetLang

	pl, err := pipeline.New(cfg, pipeline.Ports{VAD: vadPort, ASR: asrPort, MT: mtPort}, logger)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	bridge := newEventBridge()
	go bridge.serve(demoCfg.ListenAddr)

	gate := newEchoGate(cfg.SampleRate, demoCfg.EchoGateEnabled)
	engine := newAudioEngine(pl, gate, cfg)

	if err := pl.Start(func(event pipeline.PipelineEvent) {
		printEvent(event)
		bridge.broadcast(event)
		if event.Type == pipeline.EventTranslation {
			engine.queueTone()
		}
	}); err != nil {
		log.Fatalf("pipeline start: %v", err)
	}
	defer pl.Stop()

	if err := runAudioLoop(engine); err != nil {
		log.Fatal(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nshutting down...")
}

func buildASR(c DemoConfig) (pipeline.ASRPort, error) {
	switch c.ASRProvider {
	case "whisper", "":
		if c.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY (or TRANSLINGO_OPENAI_API_KEY) must be set for the whisper ASR provider")
		}
		return asrProvider.New(c.OpenAIAPIKey, asrProvider.DefaultConfig()), nil
	default:
		return nil, fmt.Errorf("unknown ASR provider %q", c.ASRProvider)
	}
}

func buildMT(c DemoConfig) (pipeline.MTPort, error) {
	switch c.MTProvider {
	case "openai", "":
		if c.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set for the openai MT provider")
		}
		return mtProvider.NewOpenAIMT(c.OpenAIAPIKey, ""), nil
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY must be set for the anthropic MT provider")
		}
		return mtProvider.NewAnthropicMT(c.AnthropicAPIKey, ""), nil
	default:
		return nil, fmt.Errorf("unknown MT provider %q", c.MTProvider)
	}
}

func buildVAD(c DemoConfig) pipeline.VADPort {
	if c.VADProvider != "neural" || c.SherpaModelPath == "" {
		// nil VADPort: the pipeline's adaptive energy pre-filter runs alone,
		// which is a fully supported configuration.
		return nil
	}
	nv, err := vadProvider.New(vadProvider.DefaultConfig(c.SherpaModelPath))
	if err != nil {
		log.Printf("neural vad unavailable (%v), falling back to energy-only VAD", err)
		return nil
	}
	return nv
}

func printEvent(event pipeline.PipelineEvent) {
	switch event.Type {
	case pipeline.EventNewSegment:
		fmt.Printf("\r\033[K[segment] opened %s\n", event.SegmentID)
	case pipeline.EventDraftASR:
		fmt.Printf("\r\033[K[draft] %s\n", event.ASR.Text)
	case pipeline.EventFinalASR:
		fmt.Printf("\r\033[K[final] %s\n", event.ASR.Text)
	case pipeline.EventTranslation:
		fmt.Printf("\r\033[K[mt] %s\n", event.Translation.TranslatedText)
	case pipeline.EventDropped:
		fmt.Printf("\r\033[K[dropped] %s: %s\n", event.SegmentID, event.DropReason)
	case pipeline.EventSessionReset:
		fmt.Printf("\r\033[K[reset]\n")
	}
}

// eventBridge fans PipelineEvents out to any number of connected websocket
// clients over coder/websocket, accepting connections the way an HTTP
// handler using that library normally does.
type eventBridge struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newEventBridge() *eventBridge {
	return &eventBridge{conns: map[*websocket.Conn]struct{}{}}
}

func (b *eventBridge) serve(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns[conn] = struct{}{}
		b.mu.Unlock()

		defer func() {
			b.mu.Lock()
			delete(b.conns, conn)
			b.mu.Unlock()
			conn.Close(websocket.StatusNormalClosure, "closing")
		}()

		ctx := r.Context()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	})
	log.Printf("event bridge listening on %s/events", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("event bridge: %v", err)
	}
}

// wireEvent is the JSON-friendly projection of a pipeline.PipelineEvent,
// since the full struct carries uuid.UUID and non-exported fields that
// don't need to cross the wire.
type wireEvent struct {
	Type       pipeline.EventType `json:"type"`
	SegmentID  string             `json:"segmentId"`
	Text       string             `json:"text,omitempty"`
	DropReason string             `json:"dropReason,omitempty"`
}

func (b *eventBridge) broadcast(event pipeline.PipelineEvent) {
	we := wireEvent{Type: event.Type, SegmentID: event.SegmentID.String()}
	switch event.Type {
	case pipeline.EventDraftASR, pipeline.EventFinalASR:
		if event.ASR != nil {
			we.Text = event.ASR.Text
		}
	case pipeline.EventTranslation:
		if event.Translation != nil {
			we.Text = event.Translation.TranslatedText
		}
	case pipeline.EventDropped:
		we.DropReason = string(event.DropReason)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		_ = wsjson.Write(ctx, conn, we)
		cancel()
	}
}
