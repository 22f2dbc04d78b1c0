/*
Copyright © 2022 the hdfnc authors.
This file is part of hdfnc.

hdfnc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

hdfnc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with hdfnc.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package ncutil is the command-line interface of hdfnc.
package ncutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/hdfnc"
	"github.com/spatialmodel/hdfnc/cloud"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

// Log is the logger passed to opened files.
var Log = logrus.New()

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to hdfnc.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print:
              one of debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "store",
			usage: `
              store is the path to the netCDF-4 store to create, read or
              modify. It can be a blob storage location such as
              s3://bucket/file.h5nc and can include environment variables.`,
			shorthand:  "s",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{buildCmd.Flags(), exportCmd.Flags(), importCmd.Flags()},
		},
		{
			name: "layout",
			usage: `
              layout is the path to the TOML file describing the groups,
              dimensions, variables and attributes to build.`,
			shorthand:  "l",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{buildCmd.Flags()},
		},
		{
			name: "input",
			usage: `
              input is the path to the file to read: a netCDF-4 store or a
              netCDF classic file for dump, and a netCDF classic file for
              import.`,
			shorthand:  "i",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{dumpCmd.Flags(), importCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output is the path of the netCDF classic file to write. For
              build it is optional. For dump it is an optional file to write
              the description to instead of standard output. It can be a
              blob storage location.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{buildCmd.Flags(), dumpCmd.Flags(), exportCmd.Flags()},
		},
		{
			name: "group",
			usage: `
              group is the path of the group to export, import into or dump.`,
			shorthand:  "g",
			defaultVal: "/",
			flagsets:   []*pflag.FlagSet{dumpCmd.Flags(), exportCmd.Flags(), importCmd.Flags()},
		},
		{
			name: "phony_dims",
			usage: `
              phony_dims selects how axes without dimension scales are
              named when reading: "sort" numbers them after all named
              dimensions, "access" in the order groups are visited, and
              an empty value makes such axes an error.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{dumpCmd.Flags(), exportCmd.Flags()},
		},
		{
			name: "invalid_netcdf",
			usage: `
              invalid_netcdf allows data types that other netCDF-4 readers
              cannot read, such as booleans and complex numbers.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{buildCmd.Flags(), importCmd.Flags()},
		},
		{
			name: "format",
			usage: `
              format is the output format of dump: "repr" for a summary or
              "toml" for a layout that build can read.`,
			defaultVal: "repr",
			flagsets:   []*pflag.FlagSet{dumpCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("HDFNC")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(buildCmd)
	Root.AddCommand(dumpCmd)
	Root.AddCommand(exportCmd)
	Root.AddCommand(importCmd)
}

// setConfig finds and reads in the configuration file, if there is one,
// and configures the logger.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("hdfnc: problem reading configuration file: %v", err)
		}
	}
	level, err := logrus.ParseLevel(Cfg.GetString("LogLevel"))
	if err != nil {
		return fmt.Errorf("hdfnc: invalid LogLevel: %v", err)
	}
	Log.Level = level
	Log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableSorting:  true,
	}
	return nil
}

// fileOptions returns the hdfnc options selected by the configuration.
func fileOptions() ([]hdfnc.Option, error) {
	opts := []hdfnc.Option{hdfnc.WithLogger(Log)}
	phony, err := hdfnc.ParsePhonyDims(Cfg.GetString("phony_dims"))
	if err != nil {
		return nil, err
	}
	opts = append(opts, hdfnc.WithPhonyDims(phony))
	invalid, err := cast.ToBoolE(Cfg.Get("invalid_netcdf"))
	if err != nil {
		return nil, fmt.Errorf("hdfnc: reading 'invalid_netcdf': %v", err)
	}
	if invalid {
		opts = append(opts, hdfnc.WithInvalidNetCDF())
	}
	return opts, nil
}

// requireOption returns the environment-expanded value of a string option,
// or an error if it is empty.
func requireOption(name string) (string, error) {
	v := os.ExpandEnv(Cfg.GetString(name))
	if v == "" {
		return "", fmt.Errorf("hdfnc: the '%s' option is required", name)
	}
	return v, nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "hdfnc",
	Short: "Build, inspect and convert netCDF-4 files.",
	Long: `hdfnc works with netCDF-4 files stored with the HDF5 dimension scale
conventions. Use the subcommands specified below to build files from TOML
layouts, print their contents, and convert them to and from netCDF classic.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'HDFNC_var' where 'var' is the
name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of hdfnc.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("hdfnc v%s\n", hdfnc.Version)
	},
	DisableAutoGenTag: true,
}

// buildCmd creates a store from a layout.
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Create a store from a TOML layout.",
	Long: `build creates the store specified by --store from the TOML layout
specified by --layout, replacing any existing file. If --output is given, the
root group is also exported as a netCDF classic file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := requireOption("store")
		if err != nil {
			return err
		}
		layoutPath, err := requireOption("layout")
		if err != nil {
			return err
		}
		opts, err := fileOptions()
		if err != nil {
			return err
		}
		return Build(context.TODO(), layoutPath, store, os.ExpandEnv(Cfg.GetString("output")), opts...)
	},
	DisableAutoGenTag: true,
}

// dumpCmd prints a file.
var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the contents of a file.",
	Long: `dump prints the groups, dimensions, variables and attributes of the
netCDF-4 store or netCDF classic file specified by --input.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := requireOption("input")
		if err != nil {
			return err
		}
		opts, err := fileOptions()
		if err != nil {
			return err
		}
		ctx := context.TODO()
		output := os.ExpandEnv(Cfg.GetString("output"))
		if output == "" {
			return Dump(ctx, cmd.OutOrStdout(), input, Cfg.GetString("group"), Cfg.GetString("format"), opts...)
		}
		var buf bytes.Buffer
		if err := Dump(ctx, &buf, input, Cfg.GetString("group"), Cfg.GetString("format"), opts...); err != nil {
			return err
		}
		return cloud.WriteFile(ctx, output, buf.Bytes())
	},
	DisableAutoGenTag: true,
}

// exportCmd converts a group to netCDF classic.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a group as a netCDF classic file.",
	Long: `export writes the group --group of the store --store to the netCDF
classic file --output. The group may have at most one unlimited dimension,
which becomes the record dimension.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := requireOption("store")
		if err != nil {
			return err
		}
		output, err := requireOption("output")
		if err != nil {
			return err
		}
		opts, err := fileOptions()
		if err != nil {
			return err
		}
		return Export(context.TODO(), store, Cfg.GetString("group"), output, opts...)
	},
	DisableAutoGenTag: true,
}

// importCmd converts a netCDF classic file into a group.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a netCDF classic file into a store.",
	Long: `import copies the netCDF classic file --input into the group --group of
the store --store, which is created if it does not exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := requireOption("input")
		if err != nil {
			return err
		}
		store, err := requireOption("store")
		if err != nil {
			return err
		}
		opts, err := fileOptions()
		if err != nil {
			return err
		}
		return Import(context.TODO(), input, store, Cfg.GetString("group"), opts...)
	},
	DisableAutoGenTag: true,
}
