// Copyright (c) 2025 Niema Moshiri and The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of go-gameid.
//
// go-gameid is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-gameid is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-gameid.  If not, see <https://www.gnu.org/licenses/>.

// Command cdimg inspects CUE/BIN and CHD disc images, printing their track
// layout and position machine state.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cdimage "github.com/retrodisc/cdimage"
	"github.com/retrodisc/cdimage/disc"
)

const appVersion = "0.1.0"

var (
	archivePath string
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:     "cdimg <file>",
	Short:   "Inspect a CUE/BIN or CHD disc image",
	Version: appVersion,
	Args:    cobra.ExactArgs(1),
	RunE:    runInspect,
}

func init() {
	rootCmd.Flags().StringVar(&archivePath, "archive", "", "open the disc image from inside this ZIP/7z/RAR archive")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "output track layout as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runInspect(_ *cobra.Command, args []string) error {
	path := args[0]

	if archivePath != "" {
		extracted, cleanup, err := extractFromArchive(archivePath, path)
		if err != nil {
			return err
		}
		defer cleanup()
		path = extracted
	}

	img, err := cdimage.Open(path)
	if err != nil {
		return fmt.Errorf("open disc image: %w", err)
	}
	defer func() { _ = img.Close() }()

	layout, err := describeDisc(img)
	if err != nil {
		return fmt.Errorf("inspect disc image: %w", err)
	}

	if jsonOutput {
		return outputJSON(layout)
	}
	outputText(layout)
	return nil
}

// trackLayout is the inspected disc summary printed by this tool.
type trackLayout struct {
	NumTracks  int               `json:"num_tracks"`
	FirstTrack string            `json:"first_track_type"`
	Tracks     []trackLayoutItem `json:"tracks"`
}

type trackLayoutItem struct {
	Number int    `json:"number"`
	Type   string `json:"type"`
	Start  string `json:"start_msf"`
}

func describeDisc(img disc.Image) (*trackLayout, error) {
	layout := &trackLayout{
		NumTracks:  img.NumTracks(),
		FirstTrack: img.FirstTrackType().String(),
	}

	for trackNum := 1; trackNum <= layout.NumTracks; trackNum++ {
		if err := img.SetLocationToTrack(trackNum); err != nil {
			return nil, fmt.Errorf("seek to track %d: %w", trackNum, err)
		}
		trackType, err := img.CurrentTrackType()
		if err != nil {
			return nil, fmt.Errorf("track %d type: %w", trackNum, err)
		}
		start, err := img.TrackStart(trackNum)
		if err != nil {
			return nil, fmt.Errorf("track %d start: %w", trackNum, err)
		}
		layout.Tracks = append(layout.Tracks, trackLayoutItem{
			Number: trackNum,
			Type:   trackType.String(),
			Start:  start.String(),
		})
	}

	return layout, nil
}

func outputJSON(layout *trackLayout) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(layout); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func outputText(layout *trackLayout) {
	fmt.Printf("Tracks: %d\n", layout.NumTracks)
	fmt.Printf("First track type: %s\n", layout.FirstTrack)
	for _, t := range layout.Tracks {
		fmt.Printf("  %2d  %-6s  %s\n", t.Number, t.Type, t.Start)
	}
}
