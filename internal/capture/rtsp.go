package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
)

// RTSPInfo summarises the media an RTSP server announces
type RTSPInfo struct {
	VideoCodec string
	Medias     int
}

// ProbeRTSP connects to an RTSP server and issues DESCRIBE so an unreachable
// or video-less stream fails before the decoder starts
func ProbeRTSP(ctx context.Context, rawURL string, timeout time.Duration) (RTSPInfo, error) {
	u, err := base.ParseURL(rawURL)
	if err != nil {
		return RTSPInfo{}, fmt.Errorf("failed to parse URL: %w", err)
	}

	client := &gortsplib.Client{
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	if err := client.Start(u.Scheme, u.Host); err != nil {
		return RTSPInfo{}, fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Close()

	type result struct {
		desc *description.Session
		err  error
	}
	done := make(chan result, 1)
	go func() {
		desc, _, err := client.Describe(u)
		done <- result{desc, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return RTSPInfo{}, fmt.Errorf("describe aborted: %w", ctx.Err())
	}
	if res.err != nil {
		return RTSPInfo{}, fmt.Errorf("failed to describe stream: %w", res.err)
	}

	info := RTSPInfo{Medias: len(res.desc.Medias)}
	for _, media := range res.desc.Medias {
		if media.Type != description.MediaTypeVideo {
			continue
		}
		for _, forma := range media.Formats {
			info.VideoCodec = codecName(forma)
			return info, nil
		}
	}

	return info, fmt.Errorf("no video media announced by %s", u.Host)
}

func codecName(f format.Format) string {
	switch f.(type) {
	case *format.H264:
		return "h264"
	case *format.H265:
		return "h265"
	case *format.MJPEG:
		return "mjpeg"
	case *format.VP8:
		return "vp8"
	case *format.VP9:
		return "vp9"
	case *format.AV1:
		return "av1"
	default:
		return f.Codec()
	}
}
