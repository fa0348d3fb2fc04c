package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/clbanning/mxj/v2"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	foxbox "github.com/fxbox/foxbox-go"
)

// args are the command line arguments.
type args struct {
	server    string
	port      int
	user      string
	password  string
	tokenFile string
	services  bool
	property  string
	adapter   string
	get       string
	set       string
	channels  bool
	addTag    string
	removeTag string
	verbose   bool
}

func main() {
	var a args
	pflag.StringVarP(&a.server, "server", "s", "localhost", "server to connect to")
	pflag.IntVarP(&a.port, "port", "p", 3000, "port to connect to")
	pflag.StringVar(&a.user, "user", "admin", "user name for signing onto the foxbox")
	pflag.StringVar(&a.password, "password", "", "password for signing onto the foxbox")
	pflag.StringVar(&a.tokenFile, "token-file", "", "authentication token cache file")
	pflag.BoolVar(&a.services, "services", false, "list the available services")
	pflag.StringVar(&a.property, "service-property", "", "select services whose name property contains the value")
	pflag.StringVar(&a.adapter, "adapter", "", "select services of adapters with the id prefix")
	pflag.StringVar(&a.get, "get", "", "retrieve the current value from the named getter")
	pflag.StringVar(&a.set, "set", "", "set the value of the named setter (name=value)")
	pflag.BoolVar(&a.channels, "channels", false, "list the available channels")
	pflag.StringVar(&a.addTag, "add-tag", "", "add a tag to the selected services")
	pflag.StringVar(&a.removeTag, "remove-tag", "", "remove a tag from the selected services")
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
	// check the set expression up front
	var setName, setValue string
	if a.set != "" {
		var ok bool
		setName, setValue, ok = strings.Cut(a.set, "=")
		if !ok {
			return fmt.Errorf("invalid --set expression %q (expected name=value)", a.set)
		}
	}
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
	// select services
	services := sess.Services
	foxbox.SortServices(services)
	var selected []foxbox.Service
	for _, s := range services {
		if s.HasPropertyValue("name", a.property) && s.IsAdapter(a.adapter) {
			selected = append(selected, s)
		}
	}
	failed := 0
	for _, s := range selected {
		if a.services {
			if err := listService(s, a.verbose); err != nil {
				return err
			}
		}
		if a.get != "" {
			if err := doGet(ctx, cl, s, a.get); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				failed++
			}
		}
		if a.set != "" {
			if err := doSet(ctx, cl, s, setName, setValue, a.verbose); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				failed++
			}
		}
	}
	if a.addTag != "" || a.removeTag != "" {
		if err := doTags(ctx, cl, selected, a.addTag, a.removeTag); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			failed++
		}
	}
	if a.channels {
		if err := listChannels(ctx, cl, a.verbose); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			failed++
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
			a.tokenFile = foxbox.DefaultTokenPath("svc")
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

// listService prints the service description.
func listService(s foxbox.Service, verbose bool) error {
	if verbose {
		buf, err := mxj.Map(s).JsonIndent("", "  ")
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(buf, '\n'))
		return err
	}
	fmt.Printf("Adapter: %s ID: %s\n", s.Adapter(), s.ID())
	fmt.Println("  setters:")
	for _, k := range s.Keys(foxbox.RoleSetter) {
		fmt.Printf("    %s\n", k)
	}
	fmt.Println("  getters:")
	for _, k := range s.Keys(foxbox.RoleGetter) {
		fmt.Printf("    %s\n", k)
	}
	return nil
}

// doGet reads the value of the first getter of s whose key contains name.
func doGet(ctx context.Context, cl *foxbox.Client, s foxbox.Service, name string) error {
	key, ch, ok := s.FindBySubstring(foxbox.RoleGetter, name)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unable to find getter for '%s'\n", name)
		return nil
	}
	res, err := cl.ChannelGet(ctx, foxbox.BuildGetRequest(key))
	if err != nil {
		return err
	}
	if res.Binary {
		fmt.Printf("%s = %d bytes of %s\n", name, len(res.Data), res.MimeType)
		return nil
	}
	v, err := foxbox.DecodeResponse(key, res.Values, ch)
	if err != nil {
		return fmt.Errorf("unable to decode value for %s: %w", key, err)
	}
	fmt.Printf("%s = '%s'\n", name, formatValue(v))
	return nil
}

// doSet writes value to the first setter of s whose key contains name.
func doSet(ctx context.Context, cl *foxbox.Client, s foxbox.Service, name, value string, verbose bool) error {
	key, ch, ok := s.FindBySubstring(foxbox.RoleSetter, name)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unable to find setter for '%s'\n", name)
		return nil
	}
	body, err := foxbox.BuildSetRequest(key, ch, value)
	if err != nil {
		return fmt.Errorf("unable to encode value for %s: %w", key, err)
	}
	ack, err := cl.ChannelSet(ctx, body)
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("%s\n", ack)
	}
	fmt.Printf("%s = '%s'\n", name, value)
	return nil
}

// doTags applies the tag updates to the selected services.
func doTags(ctx context.Context, cl *foxbox.Client, services []foxbox.Service, addTag, removeTag string) error {
	ids := make([]string, len(services))
	for i, s := range services {
		ids[i] = s.ID()
	}
	if len(ids) == 0 {
		return nil
	}
	if addTag != "" {
		n, err := cl.AddServiceTags(ctx, ids, []string{addTag})
		if err != nil {
			return err
		}
		fmt.Printf("Tagged %d service(s) with '%s'\n", n, addTag)
	}
	if removeTag != "" {
		n, err := cl.RemoveServiceTags(ctx, ids, []string{removeTag})
		if err != nil {
			return err
		}
		fmt.Printf("Untagged %d service(s) from '%s'\n", n, removeTag)
	}
	return nil
}

// listChannels prints all channels known to the box.
func listChannels(ctx context.Context, cl *foxbox.Client, verbose bool) error {
	channels, err := cl.Channels(ctx)
	if err != nil {
		return err
	}
	if verbose {
		buf, err := json.MarshalIndent(channels, "", "  ")
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(append(buf, '\n'))
		return err
	}
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].ID() < channels[j].ID()
	})
	for _, ch := range channels {
		if kind, ok := ch.Kind(); ok {
			fmt.Printf("%s (%s)\n", ch.ID(), kind)
			continue
		}
		fmt.Println(ch.ID())
	}
	return nil
}

// formatValue renders a decoded channel value for display. Strings print
// bare, anything else as compact JSON.
func formatValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(buf)
}
