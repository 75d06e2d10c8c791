package relayer

// Wire record shapes for the upstream builder's two streamed endpoints.
// Framing is newline-delimited JSON; encoding/json.Decoder consumes one
// value at a time regardless of the newlines between them, so no explicit
// delimiter handling is needed here. []byte fields decode from (and the
// upstream is expected to send) base64, which is encoding/json's native
// representation for byte slices.

type blockRecord struct {
	BlockAddress       string              `json:"block_address"`
	ParentBlockAddress string              `json:"parent_block_address"`
	Number             uint64              `json:"number"`
	TimestampSecs      uint64              `json:"timestamp_secs"`
	TimestampNanos     uint32              `json:"timestamp_nanos"`
	SolutionSets       []solutionSetRecord `json:"solution_sets"`
}

type solutionSetRecord struct {
	ContentHash string           `json:"content_hash"`
	Solutions   []solutionRecord `json:"solutions"`
}

type solutionRecord struct {
	ContractAddr  string        `json:"contract_addr"`
	PredicateAddr string        `json:"predicate_addr"`
	Mutations     []mutationRec `json:"mutations"`
	DecVars       [][]byte      `json:"dec_vars"`
	PredData      [][]byte      `json:"pred_data"`
	PubVars       [][]byte      `json:"pub_vars"`
}

type mutationRec struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

type contractRecord struct {
	Seq            uint64            `json:"seq"`
	ContentHash    string            `json:"content_hash"`
	Salt           []byte            `json:"salt"`
	CreatedAtSecs  uint64            `json:"created_at_secs"`
	CreatedAtNanos uint32            `json:"created_at_nanos"`
	Predicates     []predicateRecord `json:"predicates"`
}

type predicateRecord struct {
	ContentHash string `json:"content_hash"`
	Bytecode    []byte `json:"bytecode"`
}
