package parser

import (
	"regexp"
	"strconv"

	"github.com/traceperf/traceperf/internal/model"
	"github.com/traceperf/traceperf/internal/pool"
)

// UFS ftrace lines look like:
//
//	kworker/4:0H-370 [004] d..1 123.456789: ufshcd_command: send_req: 1d84000.ufshc: tag: 5, DB: 0x1, size: 4096, IS: 0, LBA: 40960, opcode: 0x2a, group_id: 0x0, hwq_id: 0
//
// Older kernels omit the hwq_id field; HWQueueID is -1 in that case.
var ufsPattern = regexp.MustCompile(
	`^\s*(?P<process>.+?)\s+\[(?P<cpu>\d+)\]` +
		`(?:\s+\S+)?\s+(?P<time>\d+\.\d+):\s+ufshcd_command:` +
		`\s+(?P<action>send_req|complete_rsp):\s+\S+?:` +
		`\s+tag:\s*(?P<tag>\d+),` +
		`.*?size:\s*(?P<size>-?\d+),` +
		`.*?LBA:\s*(?P<lba>\d+),` +
		`\s*opcode:\s*(?P<opcode>0x[0-9a-fA-F]+)` +
		`.*?group_id:\s*(?P<group>0x[0-9a-fA-F]+)` +
		`(?:.*?hwq_id:\s*(?P<hwq>-?\d+))?`)

var ufsIdx = namedIndex(ufsPattern)

const (
	// ufsBlock is the normalization unit for UFS addresses and sizes.
	ufsBlock = 4096

	// ufsDebugLBA is the sentinel address firmware debug commands carry
	// after 4 KiB normalization. Not a real address.
	ufsDebugLBA = uint64(0x7FFFFFFF)

	// ufsMaxLBA is the highest 4 KiB address accepted as plausible
	// (16 TiB of 4 KiB blocks). Anything beyond is traced garbage.
	ufsMaxLBA = uint64(1) << 32
)

// ParseUfs extracts a UFS command event from one trace line. It returns
// false when the line does not match the UFS pattern. Malformed numeric
// fields inside a matching line fall back to zero.
func ParseUfs(line []byte) (model.UfsEvent, bool) {
	m := ufsPattern.FindSubmatch(line)
	if m == nil {
		return model.UfsEvent{}, false
	}

	ev := model.UfsEvent{
		Time:    pool.Float64OrZero(m[ufsIdx["time"]]),
		Process: string(m[ufsIdx["process"]]),
		CPU:     pool.Uint32OrZero(m[ufsIdx["cpu"]]),
		Tag:     pool.Uint32OrZero(m[ufsIdx["tag"]]),
		Opcode:  string(m[ufsIdx["opcode"]]),
		GroupID: pool.HexUint32OrZero(m[ufsIdx["group"]]),
	}

	if string(m[ufsIdx["action"]]) == "send_req" {
		ev.Action = model.ActionDispatch
	} else {
		ev.Action = model.ActionComplete
	}

	// The size field is negative for device-to-host transfers; only the
	// magnitude matters. Bytes to 4 KiB units, rounding up.
	size := pool.Int64OrZero(m[ufsIdx["size"]])
	if size < 0 {
		size = -size
	}
	ev.Size = uint32((size + ufsBlock - 1) / ufsBlock)

	// Bytes to 4 KiB units, rounding down. Debug-sentinel and
	// out-of-range addresses are normalized to zero, not rejected.
	lba := pool.Uint64OrZero(m[ufsIdx["lba"]]) / ufsBlock
	if lba == ufsDebugLBA || lba > ufsMaxLBA {
		lba = 0
	}
	ev.LBA = lba

	ev.HWQueueID = -1
	if hwq := m[ufsIdx["hwq"]]; len(hwq) > 0 {
		if v, err := strconv.ParseInt(pool.BytesToString(hwq), 10, 32); err == nil {
			ev.HWQueueID = int32(v)
		}
	}

	return ev, true
}

// namedIndex maps named capture groups to their submatch indices.
func namedIndex(re *regexp.Regexp) map[string]int {
	idx := make(map[string]int)
	for i, name := range re.SubexpNames() {
		if name != "" {
			idx[name] = i
		}
	}
	return idx
}
