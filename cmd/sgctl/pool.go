package main

import (
	"context"
	"fmt"
	"time"

	"github.com/selfgene/sg/internal/engine/pool"
)

func handlePool(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sgctl pool push|pull|auto|list|status ...")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	peers, err := a.peers()
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		for _, p := range peers {
			fmt.Printf("%s  %s  domain=%s\n", p.Name, p.URL, p.Domain)
		}
		return nil

	case "status":
		client, err := a.poolClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Pool.RequestTimeout)
		defer cancel()
		for _, p := range peers {
			st, err := client.Status(ctx, p)
			if err != nil {
				fmt.Printf("%s: error: %v\n", p.Name, err)
				continue
			}
			fmt.Printf("%s: domain=%s active_loci=%d total_alleles=%d\n", p.Name, st.Domain, st.ActiveLoci, st.TotalAlleles)
		}
		return nil

	case "push":
		if len(args) != 3 {
			return fmt.Errorf("usage: sgctl pool push <peer> <locus>")
		}
		return poolPush(a, peers, args[1], args[2])

	case "pull":
		if len(args) != 3 {
			return fmt.Errorf("usage: sgctl pool pull <peer> <locus>")
		}
		return poolPull(a, peers, args[1], args[2])

	case "auto":
		if len(args) != 2 {
			return fmt.Errorf("usage: sgctl pool auto <locus>")
		}
		return poolAuto(a, peers, args[1])

	default:
		return fmt.Errorf("unknown pool subcommand %q", args[0])
	}
}

func findPeer(peers []pool.Peer, name string) (pool.Peer, bool) {
	for _, p := range peers {
		if p.Name == name {
			return p, true
		}
	}
	return pool.Peer{}, false
}

func poolPush(a *app, peers []pool.Peer, peerName, locus string) error {
	peer, ok := findPeer(peers, peerName)
	if !ok {
		return fmt.Errorf("unknown peer %q", peerName)
	}
	alleles, err := a.exchange.Export(locus)
	if err != nil {
		return err
	}
	client, err := a.poolClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Pool.RequestTimeout)
	defer cancel()
	if err := client.Push(ctx, peer, locus, alleles); err != nil {
		return err
	}
	store := a.membershipStore()
	if err := store.Load(); err != nil {
		return err
	}
	store.RecordPush(peer.Name, locus, time.Now().UTC())
	fmt.Printf("pushed %d alleles for %s to %s\n", len(alleles), locus, peer.Name)
	return store.Save()
}

func poolPull(a *app, peers []pool.Peer, peerName, locus string) error {
	peer, ok := findPeer(peers, peerName)
	if !ok {
		return fmt.Errorf("unknown peer %q", peerName)
	}
	client, err := a.poolClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Pool.RequestTimeout)
	defer cancel()
	alleles, err := client.Pull(ctx, peer, locus)
	if err != nil {
		return err
	}
	imported := 0
	for _, al := range alleles {
		if _, err := a.exchange.Import(peer.Name, al); err != nil {
			fmt.Printf("skipped incompatible allele from %s: %v\n", peer.Name, err)
			continue
		}
		imported++
	}
	if err := a.registry.SaveIndex(); err != nil {
		return err
	}
	if err := a.phenotype.Save(); err != nil {
		return err
	}
	store := a.membershipStore()
	if err := store.Load(); err != nil {
		return err
	}
	store.RecordPull(peer.Name, time.Now().UTC())
	fmt.Printf("imported %d/%d alleles for %s from %s\n", imported, len(alleles), locus, peer.Name)
	return store.Save()
}

// poolAuto pulls locus from every configured peer, ranks every
// candidate (local and remote) by z-scored fitness, and imports only
// the peers' alleles that outrank the current local best.
func poolAuto(a *app, peers []pool.Peer, locus string) error {
	client, err := a.poolClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Pool.RequestTimeout)
	defer cancel()

	var candidates []pool.Candidate
	local, err := a.exchange.Export(locus)
	if err != nil {
		return err
	}
	for _, al := range local {
		candidates = append(candidates, pool.Candidate{Peer: "local", Allele: al})
	}
	for _, p := range peers {
		remote, err := client.Pull(ctx, p, locus)
		if err != nil {
			fmt.Printf("%s: %v\n", p.Name, err)
			continue
		}
		for _, al := range remote {
			candidates = append(candidates, pool.Candidate{Peer: p.Name, Allele: al})
		}
	}

	ranked := pool.RankByZScore(candidates)
	imported := 0
	for _, scored := range ranked {
		if scored.Peer == "local" {
			continue
		}
		if _, err := a.exchange.Import(scored.Peer, scored.Allele); err != nil {
			continue
		}
		imported++
	}
	if err := a.registry.SaveIndex(); err != nil {
		return err
	}
	if err := a.phenotype.Save(); err != nil {
		return err
	}
	fmt.Printf("ranked %d candidates, imported %d from peers\n", len(ranked), imported)
	return nil
}
