//go:build linux && cgo

package shm

/*
#cgo LDFLAGS: -lrt -lpthread

#include <stdlib.h>
#include <stdint.h>
#include <time.h>
#include <sys/mman.h>
#include <fcntl.h>
#include <unistd.h>
#include <string.h>

#define RING_BUFFER_SIZE 30
#define MAX_DETECTIONS 10
#define MAX_FRAME_SIZE (1920 * 1080 * 3 / 2)

typedef struct {
    uint64_t frame_number;
    struct timespec timestamp;
    int camera_id;
    int width;
    int height;
    int format;
    size_t data_size;
    uint8_t data[MAX_FRAME_SIZE];
} Frame;

typedef struct {
    volatile uint32_t write_index;
    volatile uint32_t frame_interval_ms;
    Frame frames[RING_BUFFER_SIZE];
} SharedFrameBuffer;

typedef struct {
    int x;
    int y;
    int w;
    int h;
} BoundingBox;

typedef struct {
    char class_name[32];
    float confidence;
    BoundingBox bbox;
} Detection;

typedef struct {
    uint64_t frame_number;
    struct timespec timestamp;
    int num_detections;
    Detection detections[MAX_DETECTIONS];
    volatile uint32_t version;
} LatestDetectionResult;

static void* open_ro(const char* name, size_t size) {
    int fd = shm_open(name, O_RDONLY, 0666);
    if (fd == -1) {
        return NULL;
    }
    void* p = mmap(NULL, size, PROT_READ, MAP_SHARED, fd, 0);
    close(fd);
    if (p == MAP_FAILED) {
        return NULL;
    }
    return p;
}

static SharedFrameBuffer* open_frame_shm(const char* name) {
    return (SharedFrameBuffer*)open_ro(name, sizeof(SharedFrameBuffer));
}

static LatestDetectionResult* open_detection_shm(const char* name) {
    return (LatestDetectionResult*)open_ro(name, sizeof(LatestDetectionResult));
}

static void close_frame_shm(SharedFrameBuffer* shm) {
    if (shm != NULL) {
        munmap((void*)shm, sizeof(SharedFrameBuffer));
    }
}

static void close_detection_shm(LatestDetectionResult* shm) {
    if (shm != NULL) {
        munmap((void*)shm, sizeof(LatestDetectionResult));
    }
}

static uint32_t frame_write_index(SharedFrameBuffer* shm) {
    return __atomic_load_n(&shm->write_index, __ATOMIC_ACQUIRE);
}

static int read_frame(SharedFrameBuffer* shm, uint32_t write_idx, Frame* out) {
    if (write_idx == 0) {
        return -1;
    }
    memcpy(out, &shm->frames[(write_idx - 1) % RING_BUFFER_SIZE], sizeof(Frame));
    return 0;
}

static void read_detection_snapshot(LatestDetectionResult* shm, LatestDetectionResult* out) {
    memcpy(out, shm, sizeof(LatestDetectionResult));
}
*/
import "C"

import (
	"bytes"
	"context"
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/internal/detect"
	"github.com/anusha9573/SmartRefridgerator/internal/logger"
	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// Reader reads frames and the latest detection result published by a
// detector daemon in POSIX shared memory. It is both a frame source and a
// detector.
type Reader struct {
	frameShm     *C.SharedFrameBuffer
	detectionShm *C.LatestDetectionResult
	poll         time.Duration

	mu        sync.Mutex
	lastIndex uint32
	closeOnce sync.Once
}

// Open maps the named segments. Both must exist.
func Open(cfg Config) (*Reader, error) {
	cfg = cfg.withDefaults()

	frameName := C.CString(cfg.FrameName)
	frame := C.open_frame_shm(frameName)
	C.free(unsafe.Pointer(frameName))
	if frame == nil {
		return nil, errors.Wrapf(ErrUnavailable, "frame segment %s", cfg.FrameName)
	}

	detName := C.CString(cfg.DetectionName)
	detection := C.open_detection_shm(detName)
	C.free(unsafe.Pointer(detName))
	if detection == nil {
		C.close_frame_shm(frame)
		return nil, errors.Wrapf(ErrUnavailable, "detection segment %s", cfg.DetectionName)
	}

	logger.Info("SHM", "Opened %s and %s", cfg.FrameName, cfg.DetectionName)
	return &Reader{
		frameShm:     frame,
		detectionShm: detection,
		poll:         cfg.PollInterval,
	}, nil
}

// Read waits for a frame newer than the last one returned.
func (r *Reader) Read(ctx context.Context) (types.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frameShm == nil {
		return types.Frame{}, errors.Wrap(ErrUnavailable, "reader closed")
	}

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		idx := uint32(C.frame_write_index(r.frameShm))
		if idx != 0 && idx != r.lastIndex {
			var cFrame C.Frame
			if C.read_frame(r.frameShm, C.uint32_t(idx), &cFrame) == 0 {
				r.lastIndex = idx
				return convertFrame(&cFrame)
			}
		}
		select {
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func convertFrame(cFrame *C.Frame) (types.Frame, error) {
	dataSize := int(cFrame.data_size)
	if dataSize <= 0 || dataSize > MaxFrameSize {
		return types.Frame{}, errors.Errorf("frame %d: bad data size %d", uint64(cFrame.frame_number), dataSize)
	}
	data := C.GoBytes(unsafe.Pointer(&cFrame.data[0]), C.int(dataSize))

	width, height := int(cFrame.width), int(cFrame.height)
	img, err := decodeImage(int(cFrame.format), data, width, height)
	if err != nil {
		return types.Frame{}, errors.Wrapf(err, "frame %d", uint64(cFrame.frame_number))
	}
	return types.Frame{
		Image:     img,
		Timestamp: time.Unix(int64(cFrame.timestamp.tv_sec), int64(cFrame.timestamp.tv_nsec)),
		FrameNum:  uint64(cFrame.frame_number),
		Width:     width,
		Height:    height,
	}, nil
}

// Detect returns the daemon's latest detections. Until the daemon has
// published a result it reports detect.ErrNoResult.
func (r *Reader) Detect(ctx context.Context, _ types.Frame) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detectionShm == nil {
		return nil, errors.Wrap(ErrUnavailable, "reader closed")
	}

	var snap C.LatestDetectionResult
	C.read_detection_snapshot(r.detectionShm, &snap)
	if uint32(snap.version) == 0 {
		return nil, detect.ErrNoResult
	}

	n := min(int(snap.num_detections), int(C.MAX_DETECTIONS))
	raw := make([]RawDetection, 0, n)
	for i := 0; i < n; i++ {
		det := snap.detections[i]
		name := C.GoBytes(unsafe.Pointer(&det.class_name[0]), 32)
		raw = append(raw, RawDetection{
			ClassName:  string(bytes.TrimRight(name, "\x00")),
			Confidence: float32(det.confidence),
			X:          int(det.bbox.x),
			Y:          int(det.bbox.y),
			W:          int(det.bbox.w),
			H:          int(det.bbox.h),
		})
	}
	return ToDetections(raw), nil
}

// Close unmaps both segments.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		C.close_frame_shm(r.frameShm)
		C.close_detection_shm(r.detectionShm)
		r.frameShm = nil
		r.detectionShm = nil
	})
	return nil
}
