package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/uatdecode/uatd/internal/common"
	"github.com/uatdecode/uatd/internal/dict"
	"github.com/uatdecode/uatd/internal/netsrc"
	"github.com/uatdecode/uatd/internal/report"
	"github.com/uatdecode/uatd/internal/rules"
	"github.com/uatdecode/uatd/internal/server"
	"github.com/uatdecode/uatd/internal/session"
	"github.com/uatdecode/uatd/internal/stratux"
	"github.com/uatdecode/uatd/internal/uat"
	"github.com/uatdecode/uatd/internal/update"
)

type listenConfig struct {
	HTTP string `yaml:"http"`
	Raw  string `yaml:"raw"`
	JSON string `yaml:"json"`
}

type sourceConfig struct {
	Type   string `yaml:"type"` // "pcap", "udp", or "stratux"
	Path   string `yaml:"path,omitempty"`
	Addr   string `yaml:"addr,omitempty"`
	Format string `yaml:"format,omitempty"` // cs8, cu8, cs16h, cf32h; ignored for stratux
}

type manifestSigningConfig struct {
	PrivateKey  string `yaml:"privateKey"`
	Certificate string `yaml:"certificate"`
}

type logConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type config struct {
	Listen          listenConfig          `yaml:"listen"`
	StorageDir      string                `yaml:"storageDir"`
	Sources         []sourceConfig        `yaml:"sources"`
	Dictionary      string                `yaml:"dictionary"`
	RulePack        string                `yaml:"rulePack"`
	ManifestSigning manifestSigningConfig `yaml:"manifestSigning"`
	ReportInterval  time.Duration         `yaml:"reportInterval"`
	Logs            logConfig             `yaml:"logs"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	if cfg.Listen.HTTP == "" {
		cfg.Listen.HTTP = ":8080"
	}
	if cfg.Listen.Raw == "" {
		cfg.Listen.Raw = ":8081"
	}
	if cfg.Listen.JSON == "" {
		cfg.Listen.JSON = ":8082"
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = filepath.Join(".", "data")
	}
	if len(cfg.Sources) == 0 {
		return cfg, errors.New("no sample sources configured")
	}
	cfg.Dictionary = resolvePath(cfg.Dictionary)
	cfg.RulePack = resolvePath(cfg.RulePack)
	cfg.ManifestSigning.PrivateKey = resolvePath(cfg.ManifestSigning.PrivateKey)
	cfg.ManifestSigning.Certificate = resolvePath(cfg.ManifestSigning.Certificate)
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 5 * time.Minute
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func setupLogging(cfg config) error {
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logs.Directory, "uatd.log"),
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return nil
}

// pipeline wires the demodulated frames of every configured sample source
// (one shared pipeline, one goroutine per source) through FEC
// correction, ADS-B decode, the session-wide message dispatch, the
// acceptance-report statistics, and the network fan-out server.
type pipeline struct {
	dispatch *uat.MessageDispatch
	stats    *rules.SessionStats
	metrics  *common.Metrics
	srv      *server.Server
	dictSt   *dict.Store
}

func (p *pipeline) handleFrame(raw uat.RawFrame) {
	p.metrics.AddPacket(int64(len(raw.Payload)))
	var rec *uat.AdsbRecord
	if raw.Kind != uat.Uplink {
		rec = uat.DecodePayload(raw)
		p.dispatch.Dispatch(rec)
	}
	p.stats.Observe(raw.Kind, raw.CorrectedErrors, raw.RSSI)
	p.srv.Publish(raw, rec)
}

func (p *pipeline) runPcap(path, format string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	pr, err := netsrc.NewPcapReader(f)
	if err != nil {
		return err
	}
	conv, err := uat.NewConverter(sampleFormat(format))
	if err != nil {
		return err
	}
	fec, err := uat.NewFecContext()
	if err != nil {
		return err
	}
	recv := uat.NewReceiver(conv, fec)
	for {
		pkt, err := pr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, frame := range recv.HandleSamples(pkt.Payload, pkt.Timestamp, 0, false) {
			p.handleFrame(frame)
		}
	}
}

func (p *pipeline) runUDP(addr, format string) error {
	l, err := netsrc.ListenUDP(addr)
	if err != nil {
		return err
	}
	defer l.Close()
	conv, err := uat.NewConverter(sampleFormat(format))
	if err != nil {
		return err
	}
	fec, err := uat.NewFecContext()
	if err != nil {
		return err
	}
	recv := uat.NewReceiver(conv, fec)
	return l.Run(func(payload []byte, receivedAt time.Time) {
		for _, frame := range recv.HandleSamples(payload, receivedAt, 0, false) {
			p.handleFrame(frame)
		}
	})
}

func (p *pipeline) runStratux(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	fec, err := uat.NewFecContext()
	if err != nil {
		return err
	}
	return stratux.ScanReader(f, fec, p.handleFrame)
}

func sampleFormat(s string) uat.SampleFormat {
	switch s {
	case "cu8":
		return uat.FormatCU8
	case "cs16h":
		return uat.FormatCS16H
	case "cf32h":
		return uat.FormatCF32H
	default:
		return uat.FormatCS8
	}
}

func writeAcceptanceReport(engine *rules.Engine, stats *rules.SessionStats, metrics *common.Metrics, manifest *session.Document, storageDir string) {
	stats.DurationSeconds = metrics.Snapshot().Duration.Seconds()
	stats.ResyncCount = int(metrics.Snapshot().Resyncs)
	if _, err := engine.Eval(&rules.Context{Stats: stats, Manifest: manifest}); err != nil {
		log.Printf("evaluate rules: %v", err)
	}
	rep := engine.MakeAcceptance(stats)
	stamp := time.Now().UTC().Format("20060102T150405Z")
	out := filepath.Join(storageDir, fmt.Sprintf("acceptance-%s.pdf", stamp))
	if err := report.SaveAcceptancePDF(rep, out); err != nil {
		log.Printf("write acceptance report: %v", err)
		return
	}
	log.Printf("wrote acceptance report %s (pass=%v, findings=%d)", out, rep.Summary.Pass, len(rep.Findings))
}

func main() {
	configPath := flag.String("config", "config/uatd.yaml", "path to configuration file")
	enableAdmin := flag.Bool("enable-admin", false, "enable the /admin/update endpoint")
	readTimeout := flag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Printf("load config: %v", err)
		os.Exit(64)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("setup logging: %v", err)
	}

	dictSt, err := dict.EnsureLoaded(cfg.Dictionary)
	if err != nil {
		log.Fatalf("load dictionary: %v", err)
	}

	rulePack, err := rules.LoadRulePack(cfg.RulePack)
	if err != nil {
		log.Fatalf("load rule pack: %v", err)
	}
	engine := rules.NewEngine(rulePack)
	engine.RegisterBuiltins()
	manifest := session.BuildManifest(session.Config{
		DictionaryVersion: dictSt.Version(),
		StartedAt:         time.Now().UTC().Format(time.RFC3339),
	})

	var updater *update.Installer
	if *enableAdmin {
		updater, err = update.NewInstaller(update.Options{})
		if err != nil {
			log.Fatalf("update init: %v", err)
		}
	}

	srv, err := server.NewServer(server.Options{
		StorageDir: cfg.StorageDir,
		ManifestSigning: server.ManifestSigningOptions{
			PrivateKeyPath:  cfg.ManifestSigning.PrivateKey,
			CertificatePath: cfg.ManifestSigning.Certificate,
		},
		EnableAdmin:     *enableAdmin,
		UpdateInstaller: updater,
	})
	if err != nil {
		log.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	rawListener, err := server.ListenRaw(cfg.Listen.Raw, srv.Dispatcher())
	if err != nil {
		log.Printf("raw listener: %v", err)
		os.Exit(64)
	}
	defer rawListener.Close()
	jsonListener, err := server.ListenJSON(cfg.Listen.JSON, srv.Dispatcher())
	if err != nil {
		log.Printf("json listener: %v", err)
		os.Exit(64)
	}
	defer jsonListener.Close()

	router, err := server.NewRouter(srv)
	if err != nil {
		log.Fatalf("router init: %v", err)
	}
	httpServer := &http.Server{
		Addr:         cfg.Listen.HTTP,
		Handler:      router,
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	p := &pipeline{
		dispatch: uat.NewMessageDispatch(),
		stats:    rules.NewSessionStats(),
		metrics:  common.NewMetrics(),
		srv:      srv,
		dictSt:   dictSt,
	}
	p.metrics.Start()
	stopProgress := common.StartProgressPrinter(os.Stdout, p.metrics, 10*time.Second)
	defer stopProgress()

	sourceErrs := make(chan error, len(cfg.Sources))
	for _, src := range cfg.Sources {
		src := src
		go func() {
			var err error
			switch src.Type {
			case "pcap":
				err = p.runPcap(src.Path, src.Format)
			case "udp":
				err = p.runUDP(src.Addr, src.Format)
			case "stratux":
				err = p.runStratux(src.Path)
			default:
				err = fmt.Errorf("unknown source type %q", src.Type)
			}
			sourceErrs <- err
		}()
	}

	go rawListener.Serve()
	go jsonListener.Serve()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("listen: %v", err)
			os.Exit(64)
		}
	}()

	log.Printf("uatd listening: http=%s raw=%s json=%s", cfg.Listen.HTTP, cfg.Listen.Raw, cfg.Listen.JSON)

	reportTicker := time.NewTicker(cfg.ReportInterval)
	defer reportTicker.Stop()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case err := <-sourceErrs:
			if err != nil {
				log.Printf("sample source stopped: %v", err)
			}
		case <-reportTicker.C:
			writeAcceptanceReport(engine, p.stats, p.metrics, manifest, cfg.StorageDir)
		case <-shutdown:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := httpServer.Shutdown(ctx); err != nil {
				log.Printf("shutdown: %v", err)
			}
			cancel()
			p.metrics.Stop()
			writeAcceptanceReport(engine, p.stats, p.metrics, manifest, cfg.StorageDir)
			log.Println("uatd stopped")
			return
		}
	}
}
