package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.jpl.nasa.gov/bdube/softgev/control"
	"github.jpl.nasa.gov/bdube/softgev/device"
	"github.jpl.nasa.gov/bdube/softgev/imgrec"
	"github.jpl.nasa.gov/bdube/softgev/stream"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "softgevgrab.yml"
	k              = koanf.New(".")
)

type config struct {
	ControlAddr string        `yaml:"ControlAddr"`
	Serial      bool          `yaml:"Serial"`
	StreamAddr  string        `yaml:"StreamAddr"`
	Channel     int           `yaml:"Channel"`
	MultiPart   bool          `yaml:"MultiPart"`
	Frames      int           `yaml:"Frames"`
	Timeout     time.Duration `yaml:"Timeout"`
	Root        string        `yaml:"Root"`
	Prefix      string        `yaml:"Prefix"`
}

func setupconfig() {
	k.Load(structs.Provider(config{
		ControlAddr: "localhost:3956",
		StreamAddr:  "localhost:3957",
		Frames:      10,
		Timeout:     3 * time.Second,
		Root:        ".",
		Prefix:      "grab",
	}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
	// SOFTGEVGRAB_STREAMADDR overrides StreamAddr, and so on
	keys := k.Keys()
	k.Load(env.Provider("SOFTGEVGRAB_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "SOFTGEVGRAB_")
		for _, key := range keys {
			if strings.EqualFold(key, s) {
				return key
			}
		}
		return s
	}), nil)
}

func root() {
	str := `softgevgrab grabs frames from a running softgev and writes them as FITS files.

Usage:
	softgevgrab <command>

Commands:
	grab [n]
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `softgevgrab is configured by softgevgrab.yml and SOFTGEVGRAB_<KEY> environment variables.
The command mkconf generates the configuration file with the default values.

grab takes control of the device over the control channel, opens the streaming
channel, starts acquisition and writes n frames (Frames when n is omitted) to
Root/yyyy-mm-dd/<Prefix>NNNNNN.fits.  MultiPart must be true to open a multi-part channel.`
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
	fmt.Printf("softgevgrab version %v\n", Version)
}

func newSpinner() (*yacspin.Spinner, error) {
	return yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " grabbing",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
}

func grab(n int) error {
	cfg := config{}
	k.Unmarshal("", &cfg)
	if n <= 0 {
		n = cfg.Frames
	}

	ctl := control.NewClient(cfg.ControlAddr, cfg.Serial)
	ctl.Timeout = cfg.Timeout
	if err := ctl.Open(); err != nil {
		return err
	}
	defer ctl.Close()
	if err := ctl.Connect(); err != nil {
		return err
	}
	defer ctl.Disconnect()

	s, err := stream.Dial(cfg.StreamAddr, cfg.Channel, cfg.MultiPart, cfg.Timeout)
	if err != nil {
		return err
	}
	defer s.Close()

	base := device.SourceAddr(cfg.Channel)
	if err := ctl.WriteUint32(base+device.RegAcquisitionStart, 1); err != nil {
		return err
	}
	defer ctl.WriteUint32(base+device.RegAcquisitionStop, 1)

	rec := &imgrec.Recorder{Root: cfg.Root, Prefix: cfg.Prefix, Enabled: true}
	meta := []fitsio.Card{{Name: "SESSION", Value: s.Session(), Comment: "stream session id"}}

	spin, err := newSpinner()
	if err != nil {
		return err
	}
	spin.Start()
	for i := 0; i < n; i++ {
		f, err := s.Next(cfg.Timeout)
		if err != nil {
			spin.StopFailMessage(err.Error())
			spin.StopFail()
			return err
		}
		fn, err := rec.Save(f, meta)
		if err != nil {
			spin.StopFailMessage(err.Error())
			spin.StopFail()
			return err
		}
		spin.Message(fmt.Sprintf("%d/%d block %d -> %s", i+1, n, f.BlockID, fn))
	}
	spin.StopMessage(fmt.Sprintf("%d frames in %s", n, rec.Folder()))
	return spin.Stop()
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
	case "grab":
		n := 0
		if len(args) > 2 {
			var err error
			n, err = strconv.Atoi(args[2])
			if err != nil {
				log.Fatalf("frame count %q: %v", args[2], err)
			}
		}
		if err := grab(n); err != nil {
			log.Fatal(err)
		}
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
