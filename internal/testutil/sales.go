package testutil

import (
	"context"

	"github.com/roach88/hookpoint/internal/invocation"
	"github.com/roach88/hookpoint/internal/ir"
	"github.com/roach88/hookpoint/internal/model"
)

// SalesNamespace is the namespace of the sample sales model.
const SalesNamespace = "Sales"

// SalesModel builds the sample sales model: Customers, Orders, and
// Suppliers entity sets, a Settings singleton, the composable TopOrders
// function, and the Ship action. Every call returns a fresh model.
func SalesModel() *model.EdmModel {
	m := model.NewEdmModel()
	m.AddElement(&model.EntityType{
		Namespace: SalesNamespace, Name: "Customer", Key: []string{"Id"},
		Properties: []model.Property{
			{Name: "Id", Type: model.KindInt64},
			{Name: "Name", Type: model.KindString, Required: true},
			{Name: "Region", Type: model.KindString, Nullable: true},
		},
	})
	m.AddElement(&model.EntityType{
		Namespace: SalesNamespace, Name: "Order", Key: []string{"Id"},
		Properties: []model.Property{
			{Name: "Id", Type: model.KindInt64},
			{Name: "CustomerId", Type: model.KindInt64, Required: true},
			{Name: "Amount", Type: model.KindInt64},
			{Name: "Status", Type: model.KindString},
			{Name: "Owner", Type: model.KindString, Nullable: true},
		},
	})
	m.AddElement(&model.EntityType{
		Namespace: SalesNamespace, Name: "Supplier", Key: []string{"Code"},
		Properties: []model.Property{
			{Name: "Code", Type: model.KindString},
			{Name: "Name", Type: model.KindString},
		},
	})
	m.AddElement(&model.EntityType{
		Namespace: SalesNamespace, Name: "Settings", Key: []string{"Id"},
		Properties: []model.Property{
			{Name: "Id", Type: model.KindInt64},
			{Name: "Currency", Type: model.KindString},
		},
	})
	m.AddElement(&model.Operation{
		Namespace: SalesNamespace, Name: "TopOrders", Composable: true,
		ReturnType: SalesNamespace + ".Order", ReturnsCollection: true,
	})
	m.AddElement(&model.Operation{
		Namespace: SalesNamespace, Name: "Ship", IsAction: true,
		Parameters: []model.Parameter{{Name: "OrderId", Type: model.KindInt64}},
	})

	c := m.EnsureContainer(SalesNamespace, "Container")
	c.AddElement(&model.EntitySet{Name: "Customers", EntityType: SalesNamespace + ".Customer"})
	c.AddElement(&model.EntitySet{Name: "Orders", EntityType: SalesNamespace + ".Order"})
	c.AddElement(&model.EntitySet{Name: "Suppliers", EntityType: SalesNamespace + ".Supplier"})
	c.AddElement(&model.Singleton{Name: "Settings", EntityType: SalesNamespace + ".Settings"})
	c.AddElement(&model.OperationImport{Name: "TopOrders", Operation: SalesNamespace + ".TopOrders", EntitySet: "Orders"})
	c.AddElement(&model.OperationImport{Name: "Ship", Operation: SalesNamespace + ".Ship", IsAction: true})
	return m
}

// SalesProducer produces SalesModel.
func SalesProducer() model.Producer {
	return model.ProducerFunc(func(context.Context, *invocation.Context) (*model.EdmModel, error) {
		return SalesModel(), nil
	})
}

// SalesRows is the seed data of the sample sales model.
func SalesRows() map[string][]ir.IRObject {
	order := func(id, customer, amount int64, status, owner string) ir.IRObject {
		return ir.Obj(
			ir.O("Id", ir.IRInt(id)),
			ir.O("CustomerId", ir.IRInt(customer)),
			ir.O("Amount", ir.IRInt(amount)),
			ir.O("Status", ir.IRString(status)),
			ir.O("Owner", ir.IRString(owner)),
		)
	}
	return map[string][]ir.IRObject{
		"Customers": {
			ir.Obj(ir.O("Id", ir.IRInt(1)), ir.O("Name", ir.IRString("Contoso")), ir.O("Region", ir.IRString("west"))),
			ir.Obj(ir.O("Id", ir.IRInt(2)), ir.O("Name", ir.IRString("Fabrikam")), ir.O("Region", ir.IRNull{})),
		},
		"Orders": {
			order(1, 1, 100, "open", "alice"),
			order(2, 1, 250, "shipped", "bob"),
			order(3, 2, 75, "open", "alice"),
			order(4, 2, 500, "open", "carol"),
			order(5, 1, 30, "cancelled", "bob"),
		},
		"Suppliers": {
			ir.Obj(ir.O("Code", ir.IRString("ACME")), ir.O("Name", ir.IRString("Acme Corp"))),
		},
		"Settings": {
			ir.Obj(ir.O("Id", ir.IRInt(1)), ir.O("Currency", ir.IRString("EUR"))),
		},
	}
}
