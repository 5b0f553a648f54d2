//go:build opencv

package main

import "github.com/Kabilash01/cricket-ai/internal/opencv"

func init() {
	newWindowSink = func(title string) (windowDisplay, error) {
		return opencv.NewWindow(title), nil
	}
}
