package overlay

import "errors"

// H.264 NAL unit types that can carry a sequence parameter set in an RTP
// payload, per RFC 6184.
const (
	nalTypeSPS   = 7
	nalTypeStapA = 24
)

var errBadSPS = errors.New("malformed sps")

// spsDimensions extracts the native picture size from an RTP payload when
// it carries an H.264 SPS, either as a single NAL unit or inside a STAP-A
// aggregate. ok is false for payloads without a parseable SPS.
func spsDimensions(payload []byte) (width, height int, ok bool) {
	if len(payload) == 0 {
		return 0, 0, false
	}
	switch payload[0] & 0x1F {
	case nalTypeSPS:
		w, h, err := parseSPS(payload)
		return w, h, err == nil
	case nalTypeStapA:
		for offset := 1; offset+2 <= len(payload); {
			size := int(payload[offset])<<8 | int(payload[offset+1])
			offset += 2
			if size == 0 || offset+size > len(payload) {
				return 0, 0, false
			}
			nal := payload[offset : offset+size]
			if nal[0]&0x1F == nalTypeSPS {
				w, h, err := parseSPS(nal)
				return w, h, err == nil
			}
			offset += size
		}
	}
	return 0, 0, false
}

// parseSPS decodes the picture dimensions from one SPS NAL unit following
// ITU-T H.264 §7.3.2.1.1, including the frame cropping rectangle.
func parseSPS(nal []byte) (int, int, error) {
	if len(nal) < 4 {
		return 0, 0, errBadSPS
	}
	r := newBitReader(stripEmulationPrevention(nal[1:]))

	profile, err := r.bits(8)
	if err != nil {
		return 0, 0, err
	}
	// constraint flags + level_idc
	if _, err := r.bits(16); err != nil {
		return 0, 0, err
	}
	// seq_parameter_set_id
	if _, err := r.ue(); err != nil {
		return 0, 0, err
	}

	chromaFormat := uint(1)
	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		chromaFormat, err = r.ue()
		if err != nil {
			return 0, 0, err
		}
		if chromaFormat == 3 {
			// separate_colour_plane_flag
			if _, err := r.bit(); err != nil {
				return 0, 0, err
			}
		}
		// bit_depth_luma_minus8, bit_depth_chroma_minus8
		if _, err := r.ue(); err != nil {
			return 0, 0, err
		}
		if _, err := r.ue(); err != nil {
			return 0, 0, err
		}
		// qpprime_y_zero_transform_bypass_flag
		if _, err := r.bit(); err != nil {
			return 0, 0, err
		}
		scaling, err := r.bit()
		if err != nil {
			return 0, 0, err
		}
		if scaling == 1 {
			lists := 8
			if chromaFormat == 3 {
				lists = 12
			}
			for i := 0; i < lists; i++ {
				present, err := r.bit()
				if err != nil {
					return 0, 0, err
				}
				if present == 1 {
					size := 16
					if i >= 6 {
						size = 64
					}
					if err := skipScalingList(r, size); err != nil {
						return 0, 0, err
					}
				}
			}
		}
	}

	// log2_max_frame_num_minus4
	if _, err := r.ue(); err != nil {
		return 0, 0, err
	}
	pocType, err := r.ue()
	if err != nil {
		return 0, 0, err
	}
	switch pocType {
	case 0:
		// log2_max_pic_order_cnt_lsb_minus4
		if _, err := r.ue(); err != nil {
			return 0, 0, err
		}
	case 1:
		// delta_pic_order_always_zero_flag, two offsets, ref frame cycle
		if _, err := r.bit(); err != nil {
			return 0, 0, err
		}
		if _, err := r.se(); err != nil {
			return 0, 0, err
		}
		if _, err := r.se(); err != nil {
			return 0, 0, err
		}
		cycle, err := r.ue()
		if err != nil {
			return 0, 0, err
		}
		for i := uint(0); i < cycle; i++ {
			if _, err := r.se(); err != nil {
				return 0, 0, err
			}
		}
	}
	// max_num_ref_frames, gaps_in_frame_num_value_allowed_flag
	if _, err := r.ue(); err != nil {
		return 0, 0, err
	}
	if _, err := r.bit(); err != nil {
		return 0, 0, err
	}

	widthMBs, err := r.ue()
	if err != nil {
		return 0, 0, err
	}
	heightMapUnits, err := r.ue()
	if err != nil {
		return 0, 0, err
	}
	frameMbsOnly, err := r.bit()
	if err != nil {
		return 0, 0, err
	}
	if frameMbsOnly == 0 {
		// mb_adaptive_frame_field_flag
		if _, err := r.bit(); err != nil {
			return 0, 0, err
		}
	}
	// direct_8x8_inference_flag
	if _, err := r.bit(); err != nil {
		return 0, 0, err
	}

	width := int(widthMBs+1) * 16
	height := int(heightMapUnits+1) * 16 * int(2-frameMbsOnly)

	cropping, err := r.bit()
	if err != nil {
		return 0, 0, err
	}
	if cropping == 1 {
		left, err := r.ue()
		if err != nil {
			return 0, 0, err
		}
		right, err := r.ue()
		if err != nil {
			return 0, 0, err
		}
		top, err := r.ue()
		if err != nil {
			return 0, 0, err
		}
		bottom, err := r.ue()
		if err != nil {
			return 0, 0, err
		}

		cropX, cropY := 1, 1
		if chromaFormat == 1 || chromaFormat == 2 {
			cropX = 2
		}
		if chromaFormat == 1 {
			cropY = 2
		}
		cropY *= int(2 - frameMbsOnly)
		width -= cropX * int(left+right)
		height -= cropY * int(top+bottom)
	}

	if width <= 0 || height <= 0 {
		return 0, 0, errBadSPS
	}
	return width, height, nil
}

func skipScalingList(r *bitReader, size int) error {
	lastScale, nextScale := 8, 8
	for i := 0; i < size; i++ {
		if nextScale != 0 {
			delta, err := r.se()
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

// stripEmulationPrevention removes the 0x03 bytes inserted after two
// zeros in an RBSP.
func stripEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	zeros := 0
	for _, b := range data {
		if zeros >= 2 && b == 0x03 {
			zeros = 0
			continue
		}
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
		out = append(out, b)
	}
	return out
}

type bitReader struct {
	data []byte
	pos  int
}

func newBitReader(data []byte) *bitReader { return &bitReader{data: data} }

func (r *bitReader) bit() (uint, error) {
	idx := r.pos >> 3
	if idx >= len(r.data) {
		return 0, errBadSPS
	}
	b := uint(r.data[idx]>>(7-uint(r.pos&7))) & 1
	r.pos++
	return b, nil
}

func (r *bitReader) bits(n int) (uint, error) {
	var v uint
	for i := 0; i < n; i++ {
		b, err := r.bit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | b
	}
	return v, nil
}

// ue reads one unsigned exp-Golomb code.
func (r *bitReader) ue() (uint, error) {
	zeros := 0
	for {
		b, err := r.bit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 31 {
			return 0, errBadSPS
		}
	}
	v, err := r.bits(zeros)
	if err != nil {
		return 0, err
	}
	return 1<<uint(zeros) - 1 + v, nil
}

// se reads one signed exp-Golomb code.
func (r *bitReader) se() (int, error) {
	v, err := r.ue()
	if err != nil {
		return 0, err
	}
	if v&1 == 1 {
		return int(v+1) / 2, nil
	}
	return -int(v) / 2, nil
}
