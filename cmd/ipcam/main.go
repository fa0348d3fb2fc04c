package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	foxbox "github.com/fxbox/foxbox-go"
)

// adapterPrefix selects the services managed by the IP camera adapter.
const adapterPrefix = "ip-camera"

// args are the command line arguments.
type args struct {
	server    string
	port      int
	user      string
	password  string
	tokenFile string
	name      string
	listCams  bool
	listSnaps bool
	snapshot  bool
	get       string
	verbose   bool
}

func main() {
	var a args
	pflag.StringVarP(&a.server, "server", "s", "localhost", "server to connect to")
	pflag.IntVarP(&a.port, "port", "p", 3000, "port to connect to")
	pflag.StringVar(&a.user, "user", "admin", "user name for signing onto the foxbox")
	pflag.StringVar(&a.password, "password", "", "password for signing onto the foxbox")
	pflag.StringVar(&a.tokenFile, "token-file", "", "authentication token cache file")
	pflag.StringVarP(&a.name, "name", "n", "", "portion of the camera name to search for")
	pflag.BoolVarP(&a.listCams, "list-cams", "l", false, "list the available IP cameras")
	pflag.BoolVar(&a.listSnaps, "list-snaps", false, "list the snapshots available for the camera")
	pflag.BoolVar(&a.snapshot, "snapshot", false, "take a snapshot")
	pflag.StringVar(&a.get, "get", "", "retrieve the newest snapshot into the named file")
	pflag.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose output")
	pflag.Parse()
	if err := run(context.Background(), a); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a args) error {
	cfg, err := foxbox.LoadConfig(foxbox.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	applyConfig(&a, cfg)
	// options
	opts := []foxbox.ClientOption{
		foxbox.WithHostPort(a.server, a.port),
	}
	if a.verbose {
		opts = append(opts, foxbox.WithLogf(log.Printf))
	}
	// create client
	cl := foxbox.NewClient(opts...)
	// establish session
	cache := foxbox.TokenCache{Path: a.tokenFile}
	sess, err := cl.EnsureSession(ctx, foxbox.Credentials{
		Username: a.user,
		Password: a.password,
		Token:    cache.Load(),
		Prompt:   passwordPrompt,
		Logf:     logmsg,
	})
	if err != nil {
		return err
	}
	if sess.Changed {
		logmsg("Saving authentication token")
		// the cache is best effort, a failed write only costs a relogin
		if err := cache.Save(sess.Token); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	// select cameras
	var cameras []foxbox.Service
	for _, s := range sess.Services {
		if s.IsAdapter(adapterPrefix) && s.HasPropertyValue("name", a.name) {
			cameras = append(cameras, s)
		}
	}
	if len(cameras) == 0 {
		if a.name == "" {
			fmt.Println("No IP Cameras found")
		} else {
			fmt.Printf("No IP Cameras found with a name containing '%s'\n", a.name)
		}
		return nil
	}
	foxbox.SortServices(cameras)
	failed := 0
	for _, cam := range cameras {
		if a.listCams || a.listSnaps {
			fmt.Printf("id: %s name: %s\n", cam.ID(), cam.Property("name"))
		}
		if a.snapshot {
			if err := doSnapshot(ctx, cl, cam); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				failed++
			}
		}
		if a.listSnaps {
			if err := doListSnaps(ctx, cl, cam); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				failed++
			}
		}
		if a.get != "" {
			if err := doGetImage(ctx, cl, cam, a.get); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				failed++
			}
		}
	}
	if failed != 0 {
		return fmt.Errorf("%d operation(s) failed", failed)
	}
	return nil
}

// applyConfig fills flag values from the defaults file and environment, in
// flag, environment, file order.
func applyConfig(a *args, cfg foxbox.Config) {
	if !pflag.CommandLine.Changed("server") {
		if v := os.Getenv("FOXBOX_SERVER"); v != "" {
			a.server = v
		} else if cfg.Server != "" {
			a.server = cfg.Server
		}
	}
	if !pflag.CommandLine.Changed("port") && cfg.Port != 0 {
		a.port = cfg.Port
	}
	if !pflag.CommandLine.Changed("user") && cfg.User != "" {
		a.user = cfg.User
	}
	if a.tokenFile == "" {
		switch {
		case os.Getenv("FOXBOX_TOKEN_FILE") != "":
			a.tokenFile = os.Getenv("FOXBOX_TOKEN_FILE")
		case cfg.TokenFile != "":
			a.tokenFile = cfg.TokenFile
		default:
			a.tokenFile = foxbox.DefaultTokenPath("ipcam")
		}
	}
}

// logmsg writes a progress message to stderr.
func logmsg(s string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, s+"\n", v...)
}

// passwordPrompt reads a password from the terminal with echo disabled.
func passwordPrompt(username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w (no terminal available, use --password)", foxbox.ErrPasswordRequired)
	}
	fmt.Fprintf(os.Stderr, "Enter password for %s user: ", username)
	buf, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// doSnapshot triggers a snapshot on the camera.
func doSnapshot(ctx context.Context, cl *foxbox.Client, cam foxbox.Service) error {
	key, ch, ok := cam.FindBySubstring(foxbox.RoleSetter, "snapshot")
	if !ok {
		fmt.Fprintf(os.Stderr, "Unable to find setter for 'snapshot'\n")
		return nil
	}
	body, err := foxbox.BuildSetRequest(key, ch, "")
	if err != nil {
		return err
	}
	if _, err := cl.ChannelSet(ctx, body); err != nil {
		return err
	}
	fmt.Println("Snapshot taken")
	return nil
}

// doListSnaps prints the snapshots stored on the camera.
func doListSnaps(ctx context.Context, cl *foxbox.Client, cam foxbox.Service) error {
	key, ch, ok := cam.FindBySubstring(foxbox.RoleGetter, "image_list")
	if !ok {
		fmt.Fprintf(os.Stderr, "Unable to find getter for 'image_list'\n")
		return nil
	}
	res, err := cl.ChannelGet(ctx, foxbox.BuildGetRequest(key))
	if err != nil {
		return err
	}
	v, err := foxbox.DecodeResponse(key, res.Values, ch)
	if err != nil {
		return fmt.Errorf("unable to decode value for %s: %w", key, err)
	}
	l, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("unexpected snapshot list for %s", key)
	}
	snaps := make([]string, 0, len(l))
	for _, e := range l {
		if s, ok := e.(string); ok {
			snaps = append(snaps, s)
		}
	}
	if len(snaps) == 0 {
		fmt.Println("    No snapshots available")
		return nil
	}
	sort.Strings(snaps)
	for _, snap := range snaps {
		fmt.Printf("    %s\n", snap)
	}
	return nil
}

// doGetImage writes the newest snapshot of the camera to the named file.
func doGetImage(ctx context.Context, cl *foxbox.Client, cam foxbox.Service, filename string) error {
	key, _, ok := cam.FindBySubstring(foxbox.RoleGetter, "image_newest")
	if !ok {
		fmt.Fprintf(os.Stderr, "Unable to find getter for 'image_newest'\n")
		return nil
	}
	res, err := cl.ChannelGet(ctx, foxbox.BuildGetRequest(key))
	if err != nil {
		return err
	}
	if !res.Binary {
		return fmt.Errorf("expected an image for %s, got %s", key, res.MimeType)
	}
	if err := os.WriteFile(filename, res.Data, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote image to %s\n", filename)
	return nil
}
