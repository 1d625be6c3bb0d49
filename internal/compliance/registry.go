// Package compliance is the document and entity verification registry.
package compliance

import (
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

// Component is the call-surface and event namespace.
const Component = "compliance"

// Document is a registered document, keyed by its content hash.
type Document struct {
	Hash         types.Hash
	IPFSCid      string
	RegisteredBy types.Address
	RegisteredAt int64
	Verified     bool
	VerifiedBy   types.Address
	VerifiedAt   int64
}

// EntityStatus is the latest verification snapshot of an entity.
type EntityStatus struct {
	IsVerified bool
	VerifiedAt int64
	VerifiedBy types.Address
}

// Registry records documents and entity verification. All mutations
// require ComplianceOfficer and are rejected while paused.
type Registry struct {
	address types.Address
	auth    ledger.Authorizer

	docs       map[types.Hash]Document
	hashes     []types.Hash
	entityDocs map[types.Address][]types.Hash
	entities   map[types.Address]EntityStatus
	verified   uint64
}

// New creates a registry at address.
func New(address types.Address, auth ledger.Authorizer) (*Registry, error) {
	if address.IsZero() {
		return nil, ledger.ErrZeroAddress.In(Component).WithField("address")
	}
	return &Registry{
		address:    address,
		auth:       auth,
		docs:       make(map[types.Hash]Document),
		entityDocs: make(map[types.Address][]types.Hash),
		entities:   make(map[types.Address]EntityStatus),
	}, nil
}

func (r *Registry) authorize(tx *ledger.Tx) error {
	if err := r.auth.RequireRole(types.RoleComplianceOfficer, tx.Caller); err != nil {
		return err
	}
	return r.auth.RequireNotPaused()
}

// RegisterDocument records docHash with its IPFS CID. The document is
// listed under the registering officer.
func (r *Registry) RegisterDocument(tx *ledger.Tx, docHash types.Hash, ipfsCid string) error {
	if err := r.authorize(tx); err != nil {
		return err
	}
	if docHash.IsZero() {
		return ledger.ErrZeroHash.In(Component).WithField("doc_hash")
	}
	if ipfsCid == "" {
		return ledger.ErrEmptyCid.In(Component).WithField("ipfs_cid")
	}
	if _, ok := r.docs[docHash]; ok {
		return ledger.ErrAlreadyRegistered.In(Component).WithID(docHash)
	}

	officer := tx.Caller
	r.docs[docHash] = Document{
		Hash:         docHash,
		IPFSCid:      ipfsCid,
		RegisteredBy: officer,
		RegisteredAt: tx.Time,
	}
	r.hashes = append(r.hashes, docHash)
	r.entityDocs[officer] = append(r.entityDocs[officer], docHash)
	tx.OnRevert(func() {
		delete(r.docs, docHash)
		r.hashes = r.hashes[:len(r.hashes)-1]
		list := r.entityDocs[officer]
		if len(list) == 1 {
			delete(r.entityDocs, officer)
		} else {
			r.entityDocs[officer] = list[:len(list)-1]
		}
	})

	tx.Emit(Component, "DocumentRegistered", canon.Object{
		"doc_hash":      canon.H(docHash),
		"registered_by": canon.Addr(officer),
		"ipfs_cid":      canon.String(ipfsCid),
		"timestamp":     canon.Int(tx.Time),
	}, "doc_hash", "registered_by")
	return nil
}

// VerifyDocument marks a registered document verified. It can happen once.
func (r *Registry) VerifyDocument(tx *ledger.Tx, docHash types.Hash) error {
	if err := r.authorize(tx); err != nil {
		return err
	}
	d, ok := r.docs[docHash]
	if !ok {
		return ledger.ErrNotRegistered.In(Component).WithID(docHash)
	}
	if d.Verified {
		return ledger.ErrAlreadyVerified.In(Component).WithID(docHash)
	}

	prev := d
	d.Verified = true
	d.VerifiedBy = tx.Caller
	d.VerifiedAt = tx.Time
	r.docs[docHash] = d
	r.verified++
	tx.OnRevert(func() {
		r.docs[docHash] = prev
		r.verified--
	})

	tx.Emit(Component, "DocumentVerified", canon.Object{
		"doc_hash":    canon.H(docHash),
		"verified_by": canon.Addr(tx.Caller),
		"timestamp":   canon.Int(tx.Time),
	}, "doc_hash", "verified_by")
	return nil
}

// SetEntityVerification overwrites the status of entity.
func (r *Registry) SetEntityVerification(tx *ledger.Tx, entity types.Address, verified bool) error {
	if err := r.authorize(tx); err != nil {
		return err
	}
	if entity.IsZero() {
		return ledger.ErrZeroEntity.In(Component).WithField("entity")
	}

	prev, had := r.entities[entity]
	r.entities[entity] = EntityStatus{IsVerified: verified, VerifiedAt: tx.Time, VerifiedBy: tx.Caller}
	tx.OnRevert(func() {
		if had {
			r.entities[entity] = prev
		} else {
			delete(r.entities, entity)
		}
	})

	tx.Emit(Component, "EntityVerificationUpdated", canon.Object{
		"entity":    canon.Addr(entity),
		"verified":  canon.Bool(verified),
		"officer":   canon.Addr(tx.Caller),
		"timestamp": canon.Int(tx.Time),
	}, "entity", "officer")
	return nil
}

func (r *Registry) Address() types.Address { return r.address }

// Document returns the document with hash.
func (r *Registry) Document(hash types.Hash) (Document, error) {
	d, ok := r.docs[hash]
	if !ok {
		return Document{}, ledger.ErrNotRegistered.In(Component).WithID(hash)
	}
	return d, nil
}

func (r *Registry) IsEntityVerified(entity types.Address) bool {
	return r.entities[entity].IsVerified
}

// EntityStatus returns the zero status for entities never set.
func (r *Registry) EntityStatus(entity types.Address) EntityStatus {
	return r.entities[entity]
}

func (r *Registry) TotalDocuments() uint64 { return uint64(len(r.hashes)) }

func (r *Registry) VerifiedDocuments() uint64 { return r.verified }

// DocumentHashes pages through document hashes in registration order.
func (r *Registry) DocumentHashes(offset, limit uint64) []types.Hash {
	return types.Page(r.hashes, offset, limit)
}

// EntityDocuments pages through the documents registered by entity.
func (r *Registry) EntityDocuments(entity types.Address, offset, limit uint64) []types.Hash {
	return types.Page(r.entityDocs[entity], offset, limit)
}
