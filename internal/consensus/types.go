package consensus

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Uint64Str decodes the quoted integers the beacon API uses.
type Uint64Str uint64

func (s *Uint64Str) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	v, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 string: %w", err)
	}
	*s = Uint64Str(v)
	return nil
}

func (s Uint64Str) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatUint(uint64(s), 10))
}

type SignedHeader struct {
	Message struct {
		Slot          Uint64Str `json:"slot"`
		ProposerIndex Uint64Str `json:"proposer_index"`
	} `json:"message"`
}

type ProposerSlashing struct {
	SignedHeader1 SignedHeader `json:"signed_header_1"`
	SignedHeader2 SignedHeader `json:"signed_header_2"`
}

type IndexedAttestation struct {
	AttestingIndices []Uint64Str `json:"attesting_indices"`
	Data             struct {
		Slot Uint64Str `json:"slot"`
	} `json:"data"`
}

type AttesterSlashing struct {
	Attestation1 IndexedAttestation `json:"attestation_1"`
	Attestation2 IndexedAttestation `json:"attestation_2"`
}

// Slashed returns the validators present in both attestations.
func (s AttesterSlashing) Slashed() []uint64 {
	first := make(map[uint64]struct{}, len(s.Attestation1.AttestingIndices))
	for _, idx := range s.Attestation1.AttestingIndices {
		first[uint64(idx)] = struct{}{}
	}
	var out []uint64
	for _, idx := range s.Attestation2.AttestingIndices {
		if _, ok := first[uint64(idx)]; ok {
			out = append(out, uint64(idx))
		}
	}
	return out
}

type ExecutionPayload struct {
	FeeRecipient string    `json:"fee_recipient"`
	BlockNumber  Uint64Str `json:"block_number"`
	BlockHash    string    `json:"block_hash"`
	Timestamp    Uint64Str `json:"timestamp"`
}

// Block is the subset of a signed beacon block the watcher reads.
type Block struct {
	Slot          Uint64Str `json:"slot"`
	ProposerIndex Uint64Str `json:"proposer_index"`
	Body          struct {
		Graffiti          string             `json:"graffiti"`
		ProposerSlashings []ProposerSlashing `json:"proposer_slashings"`
		AttesterSlashings []AttesterSlashing `json:"attester_slashings"`
		ExecutionPayload  *ExecutionPayload  `json:"execution_payload"`
	} `json:"body"`
}

type blockResponse struct {
	Data struct {
		Message Block `json:"message"`
	} `json:"data"`
}

type Validator struct {
	Index     Uint64Str `json:"index"`
	Balance   Uint64Str `json:"balance"`
	Status    string    `json:"status"`
	Validator struct {
		Pubkey                string    `json:"pubkey"`
		WithdrawalCredentials string    `json:"withdrawal_credentials"`
		Slashed               bool      `json:"slashed"`
		ActivationEpoch       Uint64Str `json:"activation_epoch"`
		ExitEpoch             Uint64Str `json:"exit_epoch"`
	} `json:"validator"`
}

type validatorsResponse struct {
	Data []Validator `json:"data"`
}

type Checkpoint struct {
	Epoch Uint64Str `json:"epoch"`
	Root  string    `json:"root"`
}

type FinalityCheckpoints struct {
	PreviousJustified Checkpoint `json:"previous_justified"`
	CurrentJustified  Checkpoint `json:"current_justified"`
	Finalized         Checkpoint `json:"finalized"`
}

type finalityResponse struct {
	Data FinalityCheckpoints `json:"data"`
}

type SyncCommittee struct {
	Validators []Uint64Str `json:"validators"`
}

type syncCommitteeResponse struct {
	Data SyncCommittee `json:"data"`
}

type headerResponse struct {
	Data struct {
		Root   string `json:"root"`
		Header struct {
			Message struct {
				Slot Uint64Str `json:"slot"`
			} `json:"message"`
		} `json:"header"`
	} `json:"data"`
}
