package tac

// ExtractRegion copies code[start:end] (end inclusive) and rebases every
// statically resolvable jump target to region-relative form. Rebasing makes
// the slice position-independent: the same loop shape at two different
// program offsets canonicalizes, and therefore fingerprints, identically.
// Computed jump targets are left untouched; downstream consumers treat
// them as non-compilable.
func ExtractRegion(code []Instruction, start, end int) []Instruction {
	if start < 0 || end >= len(code) || start > end {
		return nil
	}
	return RebaseJumps(code[start:end+1], start)
}

// RebaseJumps returns a copy of instrs with every statically resolvable
// jump target shifted by -start.
func RebaseJumps(instrs []Instruction, start int) []Instruction {
	region := make([]Instruction, len(instrs))
	copy(region, instrs)
	for i, in := range region {
		if !in.Op.IsJump() {
			continue
		}
		if in.A.Kind == ConstOperand && in.A.Const.Kind == KindNumber {
			region[i].A = ConstNum(in.A.Const.Num - float64(start))
		}
	}
	return region
}

// HasBackwardJump reports whether a region-relative instruction sequence
// contains a backward control-flow edge: a jump at index i whose constant
// target is at or before i. This is the structural signature of a loop.
func HasBackwardJump(instrs []Instruction) bool {
	for i, in := range instrs {
		if !in.Op.IsJump() {
			continue
		}
		if in.A.Kind == ConstOperand && in.A.Const.Kind == KindNumber && int(in.A.Const.Num) <= i {
			return true
		}
	}
	return false
}
