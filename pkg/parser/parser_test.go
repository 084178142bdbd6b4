package parser

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/traceperf/traceperf/internal/model"
)

const (
	ufsDispatchLine = `kworker/4:0H-370   [004] d..1   123.456789: ufshcd_command: send_req: 1d84000.ufshc: tag: 5, DB: 0x1, size: 4096, IS: 0, LBA: 40960, opcode: 0x2a, group_id: 0x0, hwq_id: 0`
	ufsCompleteLine = `irq/133-ufshcd-271 [002] d..1   123.456910: ufshcd_command: complete_rsp: 1d84000.ufshc: tag: 5, DB: 0x0, size: -4096, IS: 0, LBA: 40960, opcode: 0x2a, group_id: 0x3, hwq_id: 1`
	blockIssueLine  = `jbd2/sda8-295      [001] d..2   123.456789: block_rq_issue: 8,0 WS 4096 () 40960 + 8 [jbd2/sda8]`
	blockDoneLine   = `<idle>-0           [000] d.h2   123.456901: block_rq_complete: 8,0 WS () 40960 + 8 [0]`
	customLine      = `0x28,1000,8,123.456,123.789`
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Family
	}{
		{"ufs dispatch", ufsDispatchLine, FamilyUFS},
		{"block issue", blockIssueLine, FamilyBlock},
		{"block complete", blockDoneLine, FamilyBlock},
		{"custom", customLine, FamilyCustom},
		{"custom indented", "  0x2a,0,1,1.0,2.0", FamilyCustom},
		{"custom too few commas", "0x28,1000,8", FamilyUnknown},
		{"plain text", "some unrelated log line", FamilyUnknown},
		{"empty", "", FamilyUnknown},
	}
	for _, tt := range tests {
		if got := Classify([]byte(tt.line)); got != tt.want {
			t.Errorf("%s: Classify = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// Classify is a prefilter only; a positive classification whose full
// pattern fails must still yield no event.
func TestParseFamily(t *testing.T) {
	tests := []struct {
		name string
		want Family
	}{
		{"ufs", FamilyUFS},
		{"UFS", FamilyUFS},
		{"block", FamilyBlock},
		{"blk", FamilyBlock},
		{"custom", FamilyCustom},
		{"csv", FamilyCustom},
	}
	for _, tt := range tests {
		got, err := ParseFamily(tt.name)
		if err != nil {
			t.Errorf("ParseFamily(%q) error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("ParseFamily(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if _, err := ParseFamily("nvme"); !errors.Is(err, ErrUnknownFamily) {
		t.Errorf("ParseFamily(nvme) error = %v, want ErrUnknownFamily", err)
	}
}

func TestClassifyParity(t *testing.T) {
	line := []byte("noise ufshcd_command: garbage with no fields")
	if Classify(line) != FamilyUFS {
		t.Fatal("marker line should classify as UFS")
	}
	var set model.TraceSet
	if ParseLine(line, &set) {
		t.Error("unparseable marker line must not produce an event")
	}
	if len(set.Ufs) != 0 {
		t.Errorf("expected no UFS events, got %d", len(set.Ufs))
	}
}

func TestParseUfsDispatch(t *testing.T) {
	ev, ok := ParseUfs([]byte(ufsDispatchLine))
	if !ok {
		t.Fatal("dispatch line did not match")
	}
	if ev.Action != model.ActionDispatch {
		t.Errorf("Action = %v, want dispatch", ev.Action)
	}
	if ev.Process != "kworker/4:0H-370" {
		t.Errorf("Process = %q", ev.Process)
	}
	if ev.CPU != 4 {
		t.Errorf("CPU = %d, want 4", ev.CPU)
	}
	if ev.Time != 123.456789 {
		t.Errorf("Time = %v", ev.Time)
	}
	if ev.Tag != 5 {
		t.Errorf("Tag = %d, want 5", ev.Tag)
	}
	if ev.Opcode != "0x2a" {
		t.Errorf("Opcode = %q", ev.Opcode)
	}
	// 40960 bytes / 4096 = 10; 4096 bytes -> 1 unit.
	if ev.LBA != 10 {
		t.Errorf("LBA = %d, want 10", ev.LBA)
	}
	if ev.Size != 1 {
		t.Errorf("Size = %d, want 1", ev.Size)
	}
	if ev.HWQueueID != 0 {
		t.Errorf("HWQueueID = %d, want 0", ev.HWQueueID)
	}
}

func TestParseUfsComplete(t *testing.T) {
	ev, ok := ParseUfs([]byte(ufsCompleteLine))
	if !ok {
		t.Fatal("complete line did not match")
	}
	if ev.Action != model.ActionComplete {
		t.Errorf("Action = %v, want complete", ev.Action)
	}
	// Negative sizes are device-to-host transfers; magnitude only.
	if ev.Size != 1 {
		t.Errorf("Size = %d, want 1", ev.Size)
	}
	if ev.GroupID != 3 {
		t.Errorf("GroupID = %d, want 3", ev.GroupID)
	}
	if ev.HWQueueID != 1 {
		t.Errorf("HWQueueID = %d, want 1", ev.HWQueueID)
	}
}

func TestParseUfsSizeRoundsUp(t *testing.T) {
	line := `p-1 [000] d..1 1.000000: ufshcd_command: send_req: host: tag: 1, DB: 0x1, size: 4097, IS: 0, LBA: 8192, opcode: 0x28, group_id: 0x0, hwq_id: 0`
	ev, ok := ParseUfs([]byte(line))
	if !ok {
		t.Fatal("line did not match")
	}
	if ev.Size != 2 {
		t.Errorf("Size = %d, want 2 (ceiling division)", ev.Size)
	}
	if ev.LBA != 2 {
		t.Errorf("LBA = %d, want 2 (floor division)", ev.LBA)
	}
}

func TestParseUfsSentinelLBA(t *testing.T) {
	tests := []struct {
		name     string
		lbaBytes uint64
	}{
		{"debug sentinel", ufsDebugLBA * ufsBlock},
		{"beyond max", (ufsMaxLBA + 1) * ufsBlock},
	}
	for _, tt := range tests {
		line := `p-1 [000] d..1 1.000000: ufshcd_command: send_req: host: tag: 1, DB: 0x1, size: 4096, IS: 0, LBA: ` +
			strconv.FormatUint(tt.lbaBytes, 10) + `, opcode: 0x28, group_id: 0x0, hwq_id: 0`
		ev, ok := ParseUfs([]byte(line))
		if !ok {
			t.Fatalf("%s: line did not match", tt.name)
		}
		if ev.LBA != 0 {
			t.Errorf("%s: LBA = %d, want 0", tt.name, ev.LBA)
		}
	}
}

func TestParseUfsMissingHWQueue(t *testing.T) {
	line := `p-1 [000] d..1 1.000000: ufshcd_command: send_req: host: tag: 7, DB: 0x1, size: 4096, IS: 0, LBA: 4096, opcode: 0x2a, group_id: 0x0`
	ev, ok := ParseUfs([]byte(line))
	if !ok {
		t.Fatal("line without hwq_id did not match")
	}
	if ev.HWQueueID != -1 {
		t.Errorf("HWQueueID = %d, want -1", ev.HWQueueID)
	}
}

func TestParseBlockIssue(t *testing.T) {
	ev, ok := ParseBlock([]byte(blockIssueLine))
	if !ok {
		t.Fatal("issue line did not match")
	}
	if ev.Action != model.ActionDispatch {
		t.Errorf("Action = %v, want dispatch", ev.Action)
	}
	if ev.Flags != "d..2" {
		t.Errorf("Flags = %q", ev.Flags)
	}
	if ev.DevMajor != 8 || ev.DevMinor != 0 {
		t.Errorf("dev = %d,%d, want 8,0", ev.DevMajor, ev.DevMinor)
	}
	if ev.IOType != "WS" {
		t.Errorf("IOType = %q", ev.IOType)
	}
	if ev.Extra != 4096 {
		t.Errorf("Extra = %d, want 4096", ev.Extra)
	}
	if ev.Sector != 40960 {
		t.Errorf("Sector = %d", ev.Sector)
	}
	if ev.Size != 8 {
		t.Errorf("Size = %d, want 8", ev.Size)
	}
	if ev.Command != "jbd2/sda8" {
		t.Errorf("Command = %q", ev.Command)
	}
}

func TestParseBlockCompleteNoExtra(t *testing.T) {
	ev, ok := ParseBlock([]byte(blockDoneLine))
	if !ok {
		t.Fatal("complete line did not match")
	}
	if ev.Action != model.ActionComplete {
		t.Errorf("Action = %v, want complete", ev.Action)
	}
	if ev.Extra != 0 {
		t.Errorf("Extra = %d, want 0 when absent", ev.Extra)
	}
}

func TestParseBlockSectorSentinel(t *testing.T) {
	line := `p-1 [000] d..1 1.000000: block_rq_complete: 8,0 W () 18446744073709551615 + 8 [0]`
	ev, ok := ParseBlock([]byte(line))
	if !ok {
		t.Fatal("line did not match")
	}
	if ev.Sector != 0 {
		t.Errorf("Sector = %d, want 0 for MaxUint64 sentinel", ev.Sector)
	}
}

func TestClassifiesSequential(t *testing.T) {
	tests := []struct {
		iotype string
		want   bool
	}{
		{"R", true}, {"RA", true}, {"W", true}, {"WS", true},
		{"D", true}, {"F", false}, {"N", false}, {"", false},
	}
	for _, tt := range tests {
		if got := ClassifiesSequential(tt.iotype); got != tt.want {
			t.Errorf("ClassifiesSequential(%q) = %v, want %v", tt.iotype, got, tt.want)
		}
	}
}

func TestParseCustom(t *testing.T) {
	ev, ok := ParseCustom([]byte(customLine))
	if !ok {
		t.Fatal("custom line did not match")
	}
	if ev.Opcode != "0x28" || ev.LBA != 1000 || ev.Size != 8 {
		t.Errorf("fields = %q %d %d", ev.Opcode, ev.LBA, ev.Size)
	}
	if math.Abs(ev.DtoC-333.0) > 1e-6 {
		t.Errorf("DtoC = %v, want 333.0", ev.DtoC)
	}
}

func TestParseCustomSkipsNonData(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"# comment",
		"opcode,lba,size,start_time,end_time",
		"0x28,1000,8,1.0,2.0,extra",
	}
	for _, line := range lines {
		if _, ok := ParseCustom([]byte(line)); ok {
			t.Errorf("line %q should not produce an event", line)
		}
	}
}

// Malformed numeric fields inside a matching line fall back to zero
// rather than dropping the line.
func TestParseCustomMalformedNumerics(t *testing.T) {
	ev, ok := ParseCustom([]byte("0x28,notanumber,8,1.5,2.5"))
	if !ok {
		t.Fatal("line should still match")
	}
	if ev.LBA != 0 {
		t.Errorf("LBA = %d, want 0 fallback", ev.LBA)
	}
	if ev.Size != 8 {
		t.Errorf("Size = %d, want 8", ev.Size)
	}
}

func TestParseLineCounts(t *testing.T) {
	var set model.TraceSet
	lines := []string{ufsDispatchLine, blockIssueLine, customLine, "noise"}
	matched := 0
	for _, l := range lines {
		if ParseLine([]byte(l), &set) {
			matched++
		}
	}
	if matched != 3 {
		t.Errorf("matched = %d, want 3", matched)
	}
	if len(set.Ufs) != 1 || len(set.Block) != 1 || len(set.Custom) != 1 {
		t.Errorf("family counts = %d/%d/%d", len(set.Ufs), len(set.Block), len(set.Custom))
	}
}
