package main

// A small exerciser for the vaporlight protocol.  It authenticates,
// paints a gradient across the configured number of LEDs, strobes, and
// repeats until interrupted.  Useful for poking a daemon or the emulator
// without any real client software.

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path"
	"time"

	logxi "github.com/mgutz/logxi/v1"

	"github.com/fxkr/vaporlight"
	"github.com/fxkr/vaporlight/version"

	"github.com/karlmutch/envflag"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	logger = logxi.New("vlclient")

	server = flag.String("server", "localhost:7534", "Address of the vaporlight daemon")
	token  = flag.String("token", "sixteen letters.", "Token secret, up to 16 characters")
	leds   = flag.Int("leds", 5, "Number of LEDs to paint")
	hi     = flag.Bool("hi", false, "Use the 16 bit per channel set messages")
	period = flag.Duration("period", time.Second, "Time between repaints")
)

func usage() {
	fmt.Fprintln(os.Stderr, path.Base(os.Args[0]))
	fmt.Fprintln(os.Stderr, "usage: ", os.Args[0], "[options]       vaporlight protocol exerciser      ", version.GitHash, "    ", version.BuildTime)
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Options:")
	fmt.Fprintln(os.Stderr, "")
	flag.PrintDefaults()
}

func init() {
	flag.Usage = usage
}

func main() {

	if !flag.Parsed() {
		envflag.Parse()
	}

	secret, err := vaporlight.SecretFromString(*token)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(-1)
	}

	conn, errGo := net.Dial("tcp", *server)
	if errGo != nil {
		logger.Error(errGo.Error())
		os.Exit(-1)
	}
	defer conn.Close()

	send := func(msg vaporlight.Message) {
		if _, errGo := conn.Write(vaporlight.Encode(msg)); errGo != nil {
			logger.Error(errGo.Error())
			os.Exit(-1)
		}
	}

	send(vaporlight.AuthMsg{Secret: secret})

	// A gradient between two hues, blended in Lab space so the steps
	// look even
	c1, _ := colorful.Hex("#0A3306")
	c2, _ := colorful.Hex("#36FF1F")

	for offset := 0; ; offset++ {
		for i := 0; i < *leds; i++ {
			t := float64((i+offset)%*leds) / float64(*leds)
			r, g, b := c1.BlendLab(c2, t).RGB255()
			color := vaporlight.ColorFrom8(r, g, b, 0xff)
			if *hi {
				send(vaporlight.SetLEDHiMsg{LED: uint16(i), Color: color})
			} else {
				send(vaporlight.SetLEDMsg{LED: uint16(i), Color: color})
			}
		}
		send(vaporlight.StrobeMsg{})

		time.Sleep(*period)
	}
}
