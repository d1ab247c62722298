package pipeline

// ConfusableTable maps characters OCR tends to mix up to their look-alikes.
// It is built once and never mutated.
type ConfusableTable struct {
	subs map[byte][]byte
}

func NewConfusableTable() *ConfusableTable {
	return &ConfusableTable{subs: map[byte][]byte{
		'A': {'4'}, 'B': {'8'}, 'E': {'3'}, 'G': {'6'},
		'I': {'1', 'L'}, 'L': {'1', 'I'}, 'O': {'0'}, 'S': {'5'}, 'Z': {'2'},
		'0': {'O'}, '1': {'I', 'L'}, '2': {'Z'}, '3': {'E'}, '4': {'A'},
		'5': {'S'}, '6': {'G'}, '8': {'B'},
	}}
}

// Variants returns every string obtained from ref by exactly one
// substitution, ordered by position. ref itself is not included.
func (t *ConfusableTable) Variants(ref string) []string {
	out := []string{}
	seen := map[string]struct{}{ref: {}}
	buf := []byte(ref)
	for i := 0; i < len(buf); i++ {
		orig := buf[i]
		for _, alt := range t.subs[orig] {
			buf[i] = alt
			v := string(buf)
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
		buf[i] = orig
	}
	return out
}
