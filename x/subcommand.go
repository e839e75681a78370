/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// SubCommand is a cobra command together with the viper config its flags are bound
// to.  Values come from flags, then <EnvPrefix>_* environment variables, then the
// --config file.
type SubCommand struct {
	Cmd  *cobra.Command
	Conf *viper.Viper

	EnvPrefix string
}

// Bind creates the viper config for s and binds the command flags and the root
// persistent flags to it.
func (s *SubCommand) Bind(root *cobra.Command) error {
	s.Conf = viper.New()
	if err := s.Conf.BindPFlags(s.Cmd.Flags()); err != nil {
		return err
	}
	if err := s.Conf.BindPFlags(root.PersistentFlags()); err != nil {
		return err
	}
	s.Conf.AutomaticEnv()
	s.Conf.SetEnvPrefix(s.EnvPrefix)
	return nil
}

// GetStringP returns the string set under name or shorthand, or def.
func (s SubCommand) GetStringP(name, shorthand, def string) string {
	if ok := s.Conf.IsSet(name); ok {
		return s.Conf.GetString(name)
	}
	if ok := s.Conf.IsSet(shorthand); ok {
		return s.Conf.GetString(shorthand)
	}
	return def
}

func (s SubCommand) GetIntP(name, shorthand string, def int) int {
	if ok := s.Conf.IsSet(name); ok {
		return s.Conf.GetInt(name)
	}
	if ok := s.Conf.IsSet(shorthand); ok {
		return s.Conf.GetInt(shorthand)
	}
	return def
}
