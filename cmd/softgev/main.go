package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus"
	"goji.io"
	"goji.io/pat"
	"golang.org/x/sync/errgroup"

	yml "gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/softgev/control"
	"github.jpl.nasa.gov/bdube/softgev/device"
	"github.jpl.nasa.gov/bdube/softgev/generichttp"
	"github.jpl.nasa.gov/bdube/softgev/generichttp/softcam"
	"github.jpl.nasa.gov/bdube/softgev/imgrec"
	"github.jpl.nasa.gov/bdube/softgev/server/middleware/locker"
	"github.jpl.nasa.gov/bdube/softgev/stream"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "softgev.yml"
	k              = koanf.New(".")
)

type recorder struct {
	// Root is the root folder to write to
	Root string `yaml:"Root"`

	// Prefix is the filename prefix to use
	Prefix string `yaml:"Prefix"`

	// Enabled turns on writing of every frame fetched as FITS
	Enabled bool `yaml:"Enabled"`
}

type sourceConf struct {
	// Type is mono for an image source or multipart for the 3D source
	Type        string `yaml:"Type"`
	Width       int    `yaml:"Width"`
	Height      int    `yaml:"Height"`
	PixelFormat string `yaml:"PixelFormat"`
}

type config struct {
	Addr          string                 `yaml:"Addr"`
	Root          string                 `yaml:"Root"`
	Router        string                 `yaml:"Router"`
	ControlAddr   string                 `yaml:"ControlAddr"`
	ControlSerial string                 `yaml:"ControlSerial"`
	ControlBaud   int                    `yaml:"ControlBaud"`
	StreamAddr    string                 `yaml:"StreamAddr"`
	FPS           float64                `yaml:"FPS"`
	Sources       []sourceConf           `yaml:"Sources"`
	Recorder      recorder               `yaml:"Recorder"`
	UserSetFile   string                 `yaml:"UserSetFile"`
	BootupArgs    map[string]interface{} `yaml:"BootupArgs"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		Addr:        ":8000",
		Root:        "/",
		Router:      "chi",
		ControlAddr: ":3956",
		ControlBaud: 115200,
		StreamAddr:  ":3957",
		FPS:         20,
		Sources: []sourceConf{
			{Type: "mono", Width: 640, Height: 480, PixelFormat: "Mono8"},
		},
		Recorder:    recorder{},
		UserSetFile: "softgev-usersets.yml",
		BootupArgs: map[string]interface{}{
			"SampleInteger": 50,
		}}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `softgev is a software GigE Vision camera.
It serves a register map and GenICam style feature tree over a control
channel, streams test pattern frames to one client per channel, and exposes
the whole device over HTTP for people and scripts.

Usage:
	softgev <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `softgev is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.

Sources lists the streaming channels in channel order.  Type is mono for an
image source or multipart for the two plane 3D source.  Width, Height and
PixelFormat override the defaults of the source when not empty.

ControlAddr is the TCP address of the control channel.  When ControlSerial names a
serial port, the control channel is served there as well.  StreamAddr is the
TCP address of the streaming channels; a client chooses the channel when it connects.

Router selects the HTTP router, chi or goji.  Root is the path the HTTP routes
are mounted under; GET <Root>/endpoints lists them.

BootupArgs are feature name: value pairs applied in name order at startup.
If a feature rejects its value, the server does not start; remove the offending
parameter from the config.`
	fmt.Println(str)
}

func mkconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	err = yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("softgev version %v\n", Version)
}

func deviceConfig(cfg config) device.Config {
	dc := device.Config{UserSetFile: cfg.UserSetFile}
	for _, s := range cfg.Sources {
		dc.Sources = append(dc.Sources, device.SourceConfig{
			MultiPart:   strings.EqualFold(s.Type, "multipart"),
			Width:       s.Width,
			Height:      s.Height,
			PixelFormat: s.PixelFormat,
			FPS:         cfg.FPS,
		})
	}
	return dc
}

func handler(cfg config, w generichttp.HTTPer, l *locker.Locker) http.Handler {
	hndlrS := generichttp.SubMuxSanitize(cfg.Root)
	if strings.EqualFold(cfg.Router, "goji") {
		root := goji.NewMux()
		root.Use(middleware.Logger)
		mux := root
		if hndlrS != "/" {
			mux = goji.SubMux()
			root.Handle(pat.New(hndlrS+"/*"), mux)
		}
		mux.Use(l.Check)
		w.RT().BindGoji(mux)
		return root
	}
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	mux := chi.NewRouter()
	mux.Use(l.Check)
	root.Mount(hndlrS, mux)
	w.RT().Bind(mux)
	return root
}

func run() {
	cfg := config{}
	k.Unmarshal("", &cfg)

	d, err := device.New(deviceConfig(cfg), nil)
	if err != nil {
		log.Fatal(err)
	}
	drivers, err := stream.BindDevice(d)
	if err != nil {
		log.Fatal(err)
	}
	err = d.Configure(cfg.BootupArgs)
	if err != nil {
		log.Fatal(err)
	}
	for _, ch := range d.Sources() {
		w, h := ch.Width(), ch.Height()
		log.Printf("channel %d: %dx%d %v\n", ch.ID(), w, h, ch.PixelType())
	}

	args := cfg.Recorder
	r := &imgrec.Recorder{Root: args.Root, Prefix: args.Prefix, Enabled: args.Enabled}
	w := softcam.NewHTTPCamera(d, drivers, r)
	if err := w.InjectMetrics(prometheus.NewRegistry()); err != nil {
		log.Fatal(err)
	}
	l := locker.New()
	locker.Inject(w, l)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{Addr: cfg.Addr, Handler: handler(cfg, w, l)}
	g.Go(func() error {
		log.Println("now listening for requests at ", cfg.Addr+cfg.Root)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	ctl := control.NewServer(d)
	g.Go(func() error {
		log.Println("control channel listening at ", cfg.ControlAddr)
		return ctl.ListenAndServe(ctx, cfg.ControlAddr)
	})
	if cfg.ControlSerial != "" {
		g.Go(func() error {
			log.Println("control channel on serial port ", cfg.ControlSerial)
			return ctl.ServeSerial(ctx, cfg.ControlSerial, cfg.ControlBaud)
		})
	}

	ss := stream.NewServer(drivers...)
	g.Go(func() error {
		log.Println("streaming channels listening at ", cfg.StreamAddr)
		return ss.ListenAndServe(ctx, cfg.StreamAddr)
	})
	g.Go(func() error {
		err := d.Messages().Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	err = g.Wait()
	for _, ch := range d.Sources() {
		d.StopAcquisition(ch.ID())
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Println("shut down")
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
