// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"slices"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/hghpublic/wasmerio-wasmer/cmd/wasix-journal/cli"
	"github.com/hghpublic/wasmerio-wasmer/journal"
	"github.com/hghpublic/wasmerio-wasmer/lib/config"
	"github.com/hghpublic/wasmerio-wasmer/lib/wasi"
	"github.com/hghpublic/wasmerio-wasmer/virtfs"
	"github.com/hghpublic/wasmerio-wasmer/virtnet"
	"github.com/hghpublic/wasmerio-wasmer/wasix"
)

type instanceView struct {
	Instance    string           `json:"instance"`
	Applied     int              `json:"applied"`
	Cwd         string           `json:"cwd"`
	ExitCode    *int             `json:"exit_code,omitempty"`
	Descriptors []descriptorView `json:"descriptors"`
	Files       []fileView       `json:"files,omitempty"`
}

type descriptorView struct {
	Fd     uint32 `json:"fd"`
	Type   string `json:"type"`
	Path   string `json:"path,omitempty"`
	Offset int64  `json:"offset"`
	Flags  string `json:"flags,omitempty"`
	Rights string `json:"rights"`
	Local  string `json:"local,omitempty"`
	Peer   string `json:"peer,omitempty"`
}

type fileView struct {
	Path  string `json:"path"`
	IsDir bool   `json:"dir,omitempty"`
	Size  int    `json:"size"`
}

type replayOptions struct {
	root       string
	instance   string
	networking string
	tree       bool
}

func (a *app) replayCommand() *cli.Command {
	var (
		common     commonOptions
		options    replayOptions
		outputJSON bool
	)
	return &cli.Command{
		Name:    "replay",
		Group:   "Inspection",
		Summary: "Restore a journal into fresh instances and show their state",
		Description: `Restore a journal into fresh instances and print the result.

Every instance in the journal gets its own environment, and records
are applied in stored order. Descriptor ids are renumbered to the
recorded ones, so the printed table is what the instance saw. Without
--root each instance gets an empty in-memory file system; with --root
all instances share the given host directory, which is modified.

Replay stops at the first record that cannot be reproduced.`,
		Usage: "wasix-journal replay <journal> [flags]",
		Examples: []cli.Example{
			{Description: "Dry run into memory, listing resulting files", Command: "wasix-journal replay app.wjournal --tree"},
			{Description: "Rebuild one instance's state on disk", Command: "wasix-journal replay app.wjournal --instance 0192f0c1-... --root ./restored"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("replay", pflag.ContinueOnError)
			common.addFlags(flagSet)
			flagSet.StringVar(&options.root, "root", "", "host directory backing the file system (default: config runtime.root, else memory)")
			flagSet.StringVar(&options.instance, "instance", "", "only restore this instance")
			flagSet.StringVar(&options.networking, "networking", "", "enabled, disabled or ask (default: config runtime.networking)")
			flagSet.BoolVar(&options.tree, "tree", false, "list the files of each restored file system")
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, "<journal>"); err != nil {
				return err
			}
			s, err := a.setup("replay", &common)
			if err != nil {
				return err
			}
			store, err := s.openJournal(args[0])
			if err != nil {
				return err
			}
			defer closeJournal(store, s.logger)

			views, err := a.replay(s, store, options)
			if err != nil {
				return err
			}
			if outputJSON {
				return cli.WriteJSON(a.streams.Out, views)
			}
			return printInstances(a.streams.Out, views, s.color)
		},
	}
}

func (a *app) replay(s *session, store journal.Store, options replayOptions) ([]instanceView, error) {
	mode := config.NetworkingMode(options.networking)
	if mode == "" {
		mode = s.config.Runtime.Networking
	}
	if !slices.Contains([]config.NetworkingMode{config.NetworkingEnabled, config.NetworkingDisabled, config.NetworkingAsk}, mode) {
		return nil, fmt.Errorf("--networking must be enabled, disabled or ask, got %q", mode)
	}

	instances := []string{options.instance}
	if options.instance == "" {
		var err error
		instances, err = journalInstances(a, store)
		if err != nil {
			return nil, err
		}
	}

	root := options.root
	if root == "" {
		root = s.config.Runtime.Root
	}
	var shared virtfs.FileSystem
	if root != "" {
		hostFS, err := virtfs.NewHostFS(root)
		if err != nil {
			return nil, err
		}
		defer hostFS.Close()
		shared = hostFS
	}

	envs := make(map[string]*wasix.Env, len(instances))
	filesystems := make(map[string]virtfs.FileSystem, len(instances))
	defer func() {
		for _, env := range envs {
			env.Close()
		}
	}()
	for _, instance := range instances {
		fileSystem := shared
		if fileSystem == nil {
			fileSystem = virtfs.NewMemFS()
		}
		networking, err := a.networking(s, mode, instance)
		if err != nil {
			return nil, err
		}
		env, err := wasix.NewEnv(wasix.Config{
			Instance:   instance,
			FileSystem: fileSystem,
			Networking: networking,
			Preopens:   preopens(s.config),
			Clock:      a.clock,
			Logger:     s.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating instance %s: %w", instance, err)
		}
		envs[instance] = env
		filesystems[instance] = fileSystem
	}

	iterator, err := store.Read(a.ctx, 0)
	if err != nil {
		return nil, err
	}
	defer iterator.Close()

	applied := make(map[string]int)
	restoreOptions := wasix.RestoreOptions{
		OnApplied: func(index int, record journal.Record) {
			applied[record.Instance]++
			s.logger.Debug("applied record", "index", index, "seq", record.Seq, "kind", record.Entry.Kind())
		},
	}
	if options.instance != "" {
		_, err = wasix.Restore(a.ctx, envs[options.instance], iterator, restoreOptions)
	} else {
		_, err = wasix.RestoreAll(a.ctx, iterator, envs, restoreOptions)
	}
	if err != nil {
		return nil, describeRestoreFailure(err)
	}
	s.logger.Info("replay complete", "instances", len(instances))

	views := make([]instanceView, 0, len(instances))
	for _, instance := range instances {
		view, err := viewInstance(envs[instance], applied[instance], filesystems[instance], options.tree)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// describeRestoreFailure flattens a restore error into a message. The
// chain is not kept: it can hold the instance's own *wasix.ExitError,
// whose exit code must not become this process's.
func describeRestoreFailure(err error) error {
	var restoreErr *wasix.RestoreError
	if errors.As(err, &restoreErr) {
		return fmt.Errorf("replay failed at record %d (seq %d, instance %s, %s): %v",
			restoreErr.Index, restoreErr.Seq, restoreErr.Instance, restoreErr.Kind, restoreErr.Err)
	}
	return fmt.Errorf("replay failed: %v", err)
}

// journalInstances lists the instances with records, in order of first
// appearance.
func journalInstances(a *app, store journal.Store) ([]string, error) {
	iterator, err := store.Read(a.ctx, 0)
	if err != nil {
		return nil, err
	}
	defer iterator.Close()

	var instances []string
	seen := make(map[string]bool)
	for {
		record, err := iterator.Next()
		if errors.Is(err, io.EOF) {
			return instances, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading journal: %w", err)
		}
		if !seen[record.Instance] {
			seen[record.Instance] = true
			instances = append(instances, record.Instance)
		}
	}
}

func (a *app) networking(s *session, mode config.NetworkingMode, instance string) (virtnet.Networking, error) {
	if mode == config.NetworkingDisabled {
		return virtnet.Unsupported{}, nil
	}
	localConfig := virtnet.LocalConfig{
		Identity: instance,
		// Local does not tag its own records.
		Logger: s.logger.With("instance", instance),
	}
	if s.config.Runtime.NetworkPool != "" {
		pool, err := netip.ParsePrefix(s.config.Runtime.NetworkPool)
		if err != nil {
			return nil, fmt.Errorf("runtime.network_pool: %w", err)
		}
		localConfig.Pool = pool
	}
	local := virtnet.NewLocal(localConfig)
	if mode == config.NetworkingEnabled {
		return local, nil
	}
	prompter := virtnet.TerminalPrompter{Input: a.streams.In, Output: a.streams.Err}
	return virtnet.NewAsking(virtnet.NewDecision(prompter), local), nil
}

func preopens(cfg *config.Config) []wasix.Preopen {
	if len(cfg.Runtime.Preopens) == 0 {
		return nil
	}
	result := make([]wasix.Preopen, 0, len(cfg.Runtime.Preopens))
	for _, preopen := range cfg.Runtime.Preopens {
		result = append(result, wasix.Preopen{Path: preopen.Path, Fd: wasi.Fd(preopen.Fd)})
	}
	return result
}

func viewInstance(env *wasix.Env, applied int, fileSystem virtfs.FileSystem, tree bool) (instanceView, error) {
	view := instanceView{
		Instance: env.Instance(),
		Applied:  applied,
		Cwd:      env.Getcwd(),
	}
	if exit, exited := env.Exited(); exited {
		code := exit.ExitCode()
		view.ExitCode = &code
	}
	for _, info := range env.Descriptors() {
		descriptor := descriptorView{
			Fd:     uint32(info.Fd),
			Type:   info.Filetype.String(),
			Path:   info.Path,
			Offset: info.Offset,
			Rights: fmt.Sprintf("%#x", uint64(info.RightsBase)),
		}
		if info.Flags != 0 {
			descriptor.Flags = info.Flags.String()
		}
		if info.LocalAddr.IsValid() {
			descriptor.Local = info.LocalAddr.String()
		}
		if info.PeerAddr.IsValid() {
			descriptor.Peer = info.PeerAddr.String()
		}
		view.Descriptors = append(view.Descriptors, descriptor)
	}
	if tree {
		entries, err := virtfs.Tree(fileSystem)
		if err != nil {
			return view, fmt.Errorf("listing files of %s: %w", env.Instance(), err)
		}
		for _, name := range virtfs.TreeNames(entries) {
			entry := entries[name]
			view.Files = append(view.Files, fileView{Path: name, IsDir: entry.IsDir, Size: len(entry.Data)})
		}
	}
	return view, nil
}

func printInstances(w io.Writer, views []instanceView, color string) error {
	if len(views) == 0 {
		fmt.Fprintln(w, "journal has no records")
		return nil
	}
	colors := newPalette(w, color)
	for i, view := range views {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (%d records applied)\n", colors.heading.Render("instance "+view.Instance), view.Applied)
		fmt.Fprintf(w, "  %s %s\n", colors.label.Render("cwd:"), view.Cwd)
		status := "running"
		if view.ExitCode != nil {
			status = fmt.Sprintf("exited with code %d", *view.ExitCode)
		}
		fmt.Fprintf(w, "  %s %s\n", colors.label.Render("status:"), status)

		tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  FD\tTYPE\tOFFSET\tFLAGS\tTARGET")
		for _, descriptor := range view.Descriptors {
			target := descriptor.Path
			switch {
			case descriptor.Peer != "":
				target = descriptor.Local + " -> " + descriptor.Peer
			case descriptor.Local != "":
				target = descriptor.Local
			}
			flags := descriptor.Flags
			if flags == "" {
				flags = "-"
			}
			fmt.Fprintf(tw, "  %d\t%s\t%d\t%s\t%s\n", descriptor.Fd, descriptor.Type, descriptor.Offset, flags, target)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		if len(view.Files) > 0 {
			fmt.Fprintln(w, " ", colors.label.Render("files:"))
			for _, file := range view.Files {
				if file.IsDir {
					fmt.Fprintf(w, "    %s/\n", file.Path)
				} else {
					fmt.Fprintf(w, "    %s (%d bytes)\n", file.Path, file.Size)
				}
			}
		}
	}
	return nil
}
