// Command fwupdaterctl is a small operator CLI over the client-side
// library, for exercising org.rdkfwupdater.Service by hand.
package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/rdkcentral/rdkfwupdater-sub002/client"
)

type globalOptions struct {
	SessionBus bool `long:"session-bus" description:"Use the D-Bus session bus instead of the system bus (development only)"`
}

var global globalOptions

type registerCmd struct {
	ProcessName string `long:"process-name" required:"true"`
	LibVersion  string `long:"lib-version" default:"1.0"`
}

func (c *registerCmd) Execute(args []string) error {
	cl, err := connect()
	if err != nil {
		return err
	}
	defer cl.Close()

	h, err := cl.Register(c.ProcessName, c.LibVersion)
	if err != nil {
		return err
	}
	fmt.Println(h)
	return nil
}

type checkCmd struct {
	Handle uint64 `long:"handle" required:"true"`
}

func (c *checkCmd) Execute(args []string) error {
	cl, err := connect()
	if err != nil {
		return err
	}
	defer cl.Close()

	result, err := cl.CheckForUpdate(client.Handle(c.Handle), func(r client.CheckResult) {
		fmt.Printf("complete: %+v\n", r)
	})
	if err != nil {
		return err
	}
	fmt.Printf("%+v\n", result)
	return nil
}

type downloadCmd struct {
	Handle         uint64 `long:"handle" required:"true"`
	FirmwareName   string `long:"firmware-name" required:"true"`
	URL            string `long:"url"`
	TypeOfFirmware string `long:"type" default:"PCI"`
}

func (c *downloadCmd) Execute(args []string) error {
	cl, err := connect()
	if err != nil {
		return err
	}
	defer cl.Close()

	return cl.DownloadAndWait(client.Handle(c.Handle), c.FirmwareName, c.URL, c.TypeOfFirmware, func(pct uint32) {
		fmt.Printf("downloading: %d%%\n", pct)
	})
}

type updateCmd struct {
	Handle            uint64 `long:"handle" required:"true"`
	FirmwareName      string `long:"firmware-name" required:"true"`
	TypeOfFirmware    string `long:"type" default:"PCI"`
	Location          string `long:"location"`
	RebootImmediately bool   `long:"reboot"`
}

func (c *updateCmd) Execute(args []string) error {
	cl, err := connect()
	if err != nil {
		return err
	}
	defer cl.Close()

	result, err := cl.UpdateAndWait(client.Handle(c.Handle), c.FirmwareName, c.TypeOfFirmware, c.Location, c.RebootImmediately, func(pct int32) {
		fmt.Printf("updating: %d%%\n", pct)
	})
	if err != nil {
		return err
	}
	fmt.Printf("%+v\n", result)
	return nil
}

func connect() (*client.Client, error) {
	if global.SessionBus {
		return client.ConnectSessionBus()
	}
	return client.Connect()
}

func main() {
	parser := flags.NewParser(&global, flags.Default)
	mustAddCommand(parser, "register", "Register a process", &registerCmd{})
	mustAddCommand(parser, "check", "Check for a firmware update", &checkCmd{})
	mustAddCommand(parser, "download", "Download firmware", &downloadCmd{})
	mustAddCommand(parser, "update", "Flash firmware", &updateCmd{})

	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mustAddCommand(parser *flags.Parser, name, short string, data interface{}) {
	if _, err := parser.AddCommand(name, short, short, data); err != nil {
		panic(err)
	}
}
