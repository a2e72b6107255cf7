package stt

import (
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
)

// Source delivers mono PCM16LE microphone frames until closed.
type Source interface {
	Open(sampleRate int, onFrames func(pcm []byte)) (io.Closer, error)
}

// MicSource captures from the default input device.
type MicSource struct{}

func (MicSource) Open(sampleRate int, onFrames func(pcm []byte)) (io.Closer, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			// malgo reuses the buffer between callbacks.
			frame := make([]byte, len(input))
			copy(frame, input)
			onFrames(frame)
		},
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("start capture device: %w", err)
	}
	return &micStream{ctx: mctx, device: device}, nil
}

type micStream struct {
	once   sync.Once
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

func (m *micStream) Close() error {
	m.once.Do(func() {
		_ = m.device.Stop()
		m.device.Uninit()
		_ = m.ctx.Uninit()
		m.ctx.Free()
	})
	return nil
}
