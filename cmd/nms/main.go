package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-nms/api"
	"github.com/nvr-ai/go-nms/api/client"
	"github.com/nvr-ai/go-nms/api/server"
	"github.com/nvr-ai/go-nms/config"
	"github.com/nvr-ai/go-nms/logger"
	"github.com/nvr-ai/go-nms/metrics"
	"github.com/nvr-ai/go-nms/models"
	"github.com/nvr-ai/go-nms/models/postprocess"
	"github.com/nvr-ai/go-nms/util"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func main() {
	var (
		configFile = flag.String("config", os.Getenv(config.EnvConfigPath), "Path to YAML configuration file")
		input      = flag.String("input", "", "Payload file, or directory of frame-<n> payload files")
		serve      = flag.Bool("serve", false, "Serve the HTTP API instead of processing -input")
		remote     = flag.String("remote", "", "Send payloads to this NMS server instead of running locally")
		dev        = flag.Bool("dev", false, "Human-readable debug logging")
		timeout    = flag.Duration("timeout", client.DefaultTimeout, "Remote request timeout")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadFile(ctx, *configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dev {
		cfg.Dev = true
		cfg.LogLevel = "debug"
	}
	if err := logger.Init(cfg.LogLevel, cfg.Dev); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if *serve {
		if !cfg.Dev {
			gin.SetMode(gin.ReleaseMode)
		}
		pp, m, err := newPostprocessor(cfg)
		if err != nil {
			logger.Log().Fatal("postprocessor", zap.Error(err))
		}
		labels, err := cfg.LabelSet()
		if err != nil {
			logger.Log().Fatal("labels", zap.Error(err))
		}
		if err := server.New(pp, m, logger.Log()).WithLabels(labels).Run(ctx, cfg.Addr); err != nil {
			logger.Log().Fatal("server", zap.Error(err))
		}
		return
	}

	if *input == "" {
		log.Fatal("Input path is required (-input) unless -serve is set")
	}

	var run runFunc
	if *remote != "" {
		c := client.New(*remote, *timeout)
		run = c.Run
	} else {
		pp, _, err := newPostprocessor(cfg)
		if err != nil {
			logger.Log().Fatal("postprocessor", zap.Error(err))
		}
		labels, err := cfg.LabelSet()
		if err != nil {
			logger.Log().Fatal("labels", zap.Error(err))
		}
		run = localRun(pp, labels)
	}

	if err := process(ctx, *input, run, os.Stdout); err != nil {
		logger.Log().Fatal("process", zap.String("input", *input), zap.Error(err))
	}
}

// runFunc turns one request into one response, locally or remotely.
type runFunc func(ctx context.Context, req api.Request) (*api.Response, error)

func newPostprocessor(cfg *config.Config) (*postprocess.Postprocessor, *metrics.Manager, error) {
	args, err := cfg.PostprocessorArgs()
	if err != nil {
		return nil, nil, err
	}
	m := metrics.NewManager(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithMetricsEnabled(cfg.Metrics.Enabled),
	)
	args.Logger = logger.Log()
	args.Recorder = m
	pp, err := postprocess.NewPostprocessor(args)
	if err != nil {
		return nil, nil, err
	}
	logger.Log().Info("postprocessor ready",
		zap.Stringer("nms", pp.Config()),
		zap.Float64("score_threshold", cfg.ScoreThreshold),
		zap.Int("max_num", cfg.MaxNum))
	return pp, m, nil
}

func localRun(pp *postprocess.Postprocessor, labels models.LabelSet) runFunc {
	return func(ctx context.Context, req api.Request) (*api.Response, error) {
		ppReq, err := req.Postprocess()
		if err != nil {
			return nil, err
		}
		dets, err := pp.Run(ctx, ppReq)
		if err != nil {
			return nil, err
		}
		resp := api.NewResponse("", dets)
		resp.NameLabels(labels)
		return &resp, nil
	}
}

// process runs every payload under path and writes one YAML document per
// payload to w, in frame order for directories.
func process(ctx context.Context, path string, run runFunc, w io.Writer) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(err, "stat input")
	}

	var files []util.PayloadFile
	if info.IsDir() {
		files, err = util.LoadDirectoryPayloads(path)
		if err != nil {
			return err
		}
	} else {
		p, err := util.LoadPayload(path)
		if err != nil {
			return err
		}
		files = []util.PayloadFile{{Path: path, Payload: p}}
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()

	start := time.Now()
	for _, f := range files {
		resp, err := run(ctx, api.Request{Payload: f.Payload})
		if err != nil {
			return errors.Wrap(err, f.Path)
		}
		if resp.ID == "" {
			resp.ID = strconv.Itoa(f.Frame)
		}
		doc := struct {
			Path         string `yaml:"path"`
			Frame        int    `yaml:"frame"`
			api.Response `yaml:",inline"`
		}{Path: f.Path, Frame: f.Frame, Response: *resp}
		if err := enc.Encode(doc); err != nil {
			return errors.Wrap(err, "write result")
		}
	}

	logger.Log().Info("processed payloads",
		zap.Int("count", len(files)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}
