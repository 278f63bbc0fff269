package player

import (
	"github.com/zsiec/ccx"

	"github.com/zsiec/decklink/driver"
)

// captionDecoder turns the CEA-708 cc_data triplets recovered from a
// frame's VANC space into displayable caption frames. CEA-608 pairs are
// decoded per field; DTVCC packets are reassembled across deliveries and
// fed to per-service 708 decoders.
type captionDecoder struct {
	cea608   [2]*ccx.CEA608Decoder // indexed by 608 field
	cea708   map[int]*ccx.CEA708Service
	dtvccBuf []byte

	// 608 control codes are transmitted twice for robustness; remember
	// the last one per field so the duplicate is not decoded again.
	lastCtrl      [2][2]byte
	lastWasCtrl   [2]bool
	lastCtrlFrame [2]int64
	frameCount    int64
}

func newCaptionDecoder() *captionDecoder {
	return &captionDecoder{
		cea608: [2]*ccx.CEA608Decoder{ccx.NewCEA608Decoder(), ccx.NewCEA608Decoder()},
		cea708: map[int]*ccx.CEA708Service{
			1: ccx.NewCEA708Service(),
			2: ccx.NewCEA708Service(),
			3: ccx.NewCEA708Service(),
			4: ccx.NewCEA708Service(),
			5: ccx.NewCEA708Service(),
			6: ccx.NewCEA708Service(),
		},
	}
}

// decode processes one delivery's cc_data triplets and returns any
// caption frames that became displayable.
func (d *captionDecoder) decode(cc []driver.CCData, pts int64) []*ccx.CaptionFrame {
	d.frameCount++
	var out []*ccx.CaptionFrame

	for _, t := range cc {
		switch t.Type {
		case 0, 1: // CEA-608 field one / field two
			out = append(out, d.decode608(int(t.Type), t.Data, pts)...)
		case 3: // DTVCC packet start
			out = append(out, d.drainDTVCC(pts)...)
			d.dtvccBuf = d.dtvccBuf[:0]
			d.dtvccBuf = append(d.dtvccBuf, t.Data[0], t.Data[1])
		case 2: // DTVCC continuation
			d.dtvccBuf = append(d.dtvccBuf, t.Data[0], t.Data[1])
		}
	}

	return out
}

func (d *captionDecoder) decode608(field int, data [2]byte, pts int64) []*ccx.CaptionFrame {
	cc1, cc2 := data[0], data[1]

	isCtrl := cc1 >= 0x10 && cc1 <= 0x1F
	if isCtrl {
		frameGap := d.frameCount - d.lastCtrlFrame[field]
		if d.lastWasCtrl[field] && d.lastCtrl[field] == data && frameGap <= 2 {
			d.lastWasCtrl[field] = false
			return nil
		}
		d.lastCtrl[field] = data
		d.lastWasCtrl[field] = true
		d.lastCtrlFrame[field] = d.frameCount
	} else {
		d.lastWasCtrl[field] = false
	}

	dec := d.cea608[field]
	text := dec.Decode(cc1, cc2)
	if text == "" {
		return nil
	}
	frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: field + 1}
	frame.Regions = dec.StyledRegions()
	return []*ccx.CaptionFrame{frame}
}

func (d *captionDecoder) drainDTVCC(pts int64) []*ccx.CaptionFrame {
	if len(d.dtvccBuf) < 1 {
		return nil
	}

	packetSize := ccx.DTVCCPacketSize(d.dtvccBuf[0])
	if len(d.dtvccBuf) < packetSize {
		return nil
	}

	var out []*ccx.CaptionFrame
	for _, block := range ccx.ParseDTVCCPacket(d.dtvccBuf[:packetSize]) {
		svc := d.cea708[block.ServiceNum]
		if svc == nil {
			continue
		}
		if svc.ProcessBlock(block.Data) {
			text := svc.DisplayText()
			if text == "" {
				continue
			}
			frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: block.ServiceNum + 6}
			frame.Regions = svc.StyledRegions()
			out = append(out, frame)
		}
	}
	d.dtvccBuf = d.dtvccBuf[packetSize:]
	return out
}
